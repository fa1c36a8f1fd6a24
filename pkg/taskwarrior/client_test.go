package taskwarrior

import (
	"strings"
	"testing"
	"time"

	"github.com/harrisonrobin/pomodo/pkg/model"
)

const sampleTask = `{
	"uuid": "f45a05b3-c12e-42e5-9c9c-333333333333",
	"description": "Buy milk",
	"status": "pending",
	"due": "20230101T120000Z",
	"priority": "H",
	"project": "Groceries",
	"tags": ["buy", "urgent"],
	"annotations": [
		{"entry": "20230101T120500Z", "description": "Don't forget almond milk"}
	]
}`

func TestParseTask(t *testing.T) {
	client := NewClient()
	task, err := client.ParseTask(strings.NewReader(sampleTask))
	if err != nil {
		t.Fatalf("ParseTask failed: %v", err)
	}

	if task.UUID != "f45a05b3-c12e-42e5-9c9c-333333333333" {
		t.Errorf("Expected UUID f45a05b3-c12e-42e5-9c9c-333333333333, got %s", task.UUID)
	}
	if task.Description != "Buy milk" {
		t.Errorf("Expected Description 'Buy milk', got '%s'", task.Description)
	}
	if task.Project != "Groceries" {
		t.Errorf("Expected Project 'Groceries', got '%s'", task.Project)
	}
	if len(task.Tags) != 2 {
		t.Errorf("Expected 2 tags, got %d", len(task.Tags))
	}
	if len(task.Annotations) != 1 {
		t.Errorf("Expected 1 annotation, got %d", len(task.Annotations))
	}
	expectedDue, _ := time.Parse(time.RFC3339, "2023-01-01T12:00:00Z")
	if !task.Due.Time.Equal(expectedDue) {
		t.Errorf("Expected Due %v, got %v", expectedDue, task.Due.Time)
	}
}

func TestParseTasksArrayAndStream(t *testing.T) {
	client := NewClient()

	array := "  \n[" + sampleTask + "," + sampleTask + "]"
	tasks, err := client.ParseTasks(strings.NewReader(array))
	if err != nil {
		t.Fatalf("ParseTasks(array) failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Errorf("Expected 2 tasks from array, got %d", len(tasks))
	}

	stream := sampleTask + "\n" + sampleTask + "\n" + sampleTask + "\n"
	tasks, err = client.ParseTasks(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("ParseTasks(stream) failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("Expected 3 tasks from stream, got %d", len(tasks))
	}

	tasks, err = client.ParseTasks(strings.NewReader("   "))
	if err != nil || len(tasks) != 0 {
		t.Errorf("Expected no tasks and no error for blank input, got %d, %v", len(tasks), err)
	}

	if _, err := client.ParseTasks(strings.NewReader("{nope")); err == nil {
		t.Error("Expected error for malformed input")
	}
}

func TestToImport(t *testing.T) {
	task, err := NewClient().ParseTask(strings.NewReader(sampleTask))
	if err != nil {
		t.Fatal(err)
	}
	imp := ToImport(task)

	if imp.Draft.Title != "Buy milk" {
		t.Errorf("Expected title 'Buy milk', got %q", imp.Draft.Title)
	}
	if imp.Draft.Priority != model.PriorityHigh {
		t.Errorf("Expected HIGH priority, got %s", imp.Draft.Priority)
	}
	if want := model.NewTagSet(model.TagUrgent, model.TagOther); imp.Draft.Tags != want {
		t.Errorf("Expected tags %v, got %v", want, imp.Draft.Tags)
	}
	if imp.Draft.DueDate == nil || imp.Draft.DueDate.Hour() != 12 {
		t.Errorf("Expected due date at 12:00, got %v", imp.Draft.DueDate)
	}
	if !strings.Contains(imp.Draft.Description, "Project: Groceries") || !strings.Contains(imp.Draft.Description, "almond milk") {
		t.Errorf("Expected project and annotation in description, got %q", imp.Draft.Description)
	}
	if imp.Completed {
		t.Error("Pending task imported as completed")
	}
	if err := imp.Draft.Validate(); err != nil {
		t.Errorf("Imported draft is invalid: %v", err)
	}
}

func TestToImportFallbacks(t *testing.T) {
	scheduled := time.Date(2023, 2, 1, 8, 0, 0, 0, time.UTC)
	task := Task{
		UUID:        "x",
		Description: "Review",
		Status:      COMPLETED,
		Priority:    "L",
		Scheduled:   &CustomTime{Time: scheduled},
		Tags:        []string{"work", "Personal"},
	}
	imp := ToImport(task)
	if !imp.Completed {
		t.Error("Expected completed import")
	}
	if imp.Draft.Priority != model.PriorityLow {
		t.Errorf("Expected LOW, got %s", imp.Draft.Priority)
	}
	if imp.Draft.DueDate == nil || !imp.Draft.DueDate.Equal(scheduled) {
		t.Errorf("Expected scheduled date as due date, got %v", imp.Draft.DueDate)
	}
	if want := model.NewTagSet(model.TagWork, model.TagPersonal); imp.Draft.Tags != want {
		t.Errorf("Expected %v, got %v", want, imp.Draft.Tags)
	}
	if ToImport(Task{Priority: ""}).Draft.Priority != model.PriorityMedium {
		t.Error("Expected MEDIUM by default")
	}
}

func TestSkipped(t *testing.T) {
	cases := map[string]bool{
		DELETED:   true,
		RECURRING: true,
		PENDING:   false,
		WAITING:   false,
		COMPLETED: false,
	}
	for status, want := range cases {
		if got := Skipped(Task{Status: status, Description: "d"}); got != want {
			t.Errorf("Skipped(%s) = %v, want %v", status, got, want)
		}
	}
	if !Skipped(Task{Status: PENDING, Description: "  "}) {
		t.Error("Expected blank description to be skipped")
	}
}
