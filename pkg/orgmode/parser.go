package orgmode

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/harrisonrobin/pomodo/pkg/model"
)

var (
	headingRe  = regexp.MustCompile(`^\*+\s+(TODO|DONE)\s+(?:\[#([A-Z])\]\s*)?(.*?)(?:\s+:([\w@:]+):)?\s*$`)
	anyHeadRe  = regexp.MustCompile(`^\*+\s`)
	planningRe = regexp.MustCompile(`(DEADLINE|SCHEDULED):\s+<(\d{4}-\d{2}-\d{2})(?:\s+[A-Za-z]{2,3})?(?:\s+(\d{1,2}:\d{2}))?[^>]*>`)
	idRe       = regexp.MustCompile(`^:ID:\s+(\S+)`)
)

// ParseFile parses an Org-mode file.
func ParseFile(filePath string) ([]model.Import, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file, filePath)
}

// ParseFiles parses several Org-mode files in order.
func ParseFiles(filePaths []string) ([]model.Import, error) {
	var all []model.Import
	for _, filePath := range filePaths {
		imports, err := ParseFile(filePath)
		if err != nil {
			return nil, err
		}
		all = append(all, imports...)
	}
	return all, nil
}

type entry struct {
	imp       model.Import
	line      int
	id        string
	deadline  *time.Time
	scheduled *time.Time
	body      []string
	inDrawer  bool
}

// Parse reads TODO and DONE headings of any level. A DEADLINE, or failing
// that a SCHEDULED timestamp, becomes the due date; plain body lines become
// the description. Date-only timestamps are due at the end of that day.
func Parse(r io.Reader, source string) ([]model.Import, error) {
	scanner := bufio.NewScanner(r)
	var imports []model.Import
	var cur *entry
	lineNo := 0

	flush := func() {
		if cur == nil {
			return
		}
		imports = append(imports, cur.finish(source))
		cur = nil
	}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if anyHeadRe.MatchString(raw) {
			flush()
			if m := headingRe.FindStringSubmatch(raw); m != nil {
				cur = newEntry(m, lineNo)
			}
			continue
		}
		if cur == nil {
			continue
		}

		switch {
		case line == ":PROPERTIES:" || line == ":LOGBOOK:":
			cur.inDrawer = true
		case line == ":END:":
			cur.inDrawer = false
		case cur.inDrawer:
			if m := idRe.FindStringSubmatch(line); m != nil {
				cur.id = m[1]
			}
		case planningRe.MatchString(line):
			for _, m := range planningRe.FindAllStringSubmatch(line, -1) {
				ts, err := parseStamp(m[2], m[3])
				if err != nil {
					return nil, fmt.Errorf("%s:%d: %w", source, lineNo, err)
				}
				if m[1] == "DEADLINE" {
					cur.deadline = &ts
				} else {
					cur.scheduled = &ts
				}
			}
		case strings.HasPrefix(line, "CLOSED:"):
		default:
			cur.body = append(cur.body, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return imports, nil
}

func newEntry(m []string, line int) *entry {
	return &entry{
		line: line,
		imp: model.Import{
			Completed: m[1] == "DONE",
			Draft: model.Draft{
				Title:    strings.TrimSpace(m[3]),
				Priority: priority(m[2]),
				Tags:     tags(m[4]),
			},
		},
	}
}

func (e *entry) finish(source string) model.Import {
	imp := e.imp
	switch {
	case e.deadline != nil:
		imp.Draft.DueDate = e.deadline
	case e.scheduled != nil:
		imp.Draft.DueDate = e.scheduled
	}
	imp.Draft.Description = strings.TrimSpace(strings.Join(e.body, "\n"))
	if e.id != "" {
		imp.Source = "org:" + e.id
	} else {
		imp.Source = fmt.Sprintf("org:%s:%d", source, e.line)
	}
	return imp
}

func parseStamp(date, clock string) (time.Time, error) {
	if clock == "" {
		d, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			return time.Time{}, err
		}
		y, m, day := d.Date()
		return time.Date(y, m, day, 23, 59, 0, 0, time.Local), nil
	}
	return time.ParseInLocation("2006-01-02 15:04", date+" "+clock, time.Local)
}

func priority(cookie string) model.Priority {
	switch cookie {
	case "A":
		return model.PriorityHigh
	case "C":
		return model.PriorityLow
	default:
		return model.PriorityMedium
	}
}

func tags(s string) model.TagSet {
	var set model.TagSet
	for _, name := range strings.Split(s, ":") {
		if name == "" {
			continue
		}
		tag, err := model.ParseTag(name)
		if err != nil {
			tag = model.TagOther
		}
		set = set.With(tag)
	}
	return set
}

// FilterTasks keeps the imports carrying tag.
func FilterTasks(imports []model.Import, tag model.Tag) []model.Import {
	var out []model.Import
	for _, imp := range imports {
		if imp.Draft.Tags.Has(tag) {
			out = append(out, imp)
		}
	}
	return out
}
