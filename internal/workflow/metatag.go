package workflow

import (
	"fmt"
	"regexp"
	"strconv"
)

// MetaTag is the subject/topic marker every assistant response ends with.
type MetaTag struct {
	SubjectID int64
	TopicID   int64
}

var metaTagRe = regexp.MustCompile(
	`<!--\s*\[meta\]\s*subject:\s*[^(]+\(id:\s*(\d+)\)\s*\|\s*topic:\s*[^(]+\(id:\s*(\d+)\)\s*-->`,
)

// ParseMetaTag returns the last meta tag in text.
func ParseMetaTag(text string) (MetaTag, bool) {
	matches := metaTagRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return MetaTag{}, false
	}
	m := matches[len(matches)-1]
	subject, err1 := strconv.ParseInt(m[1], 10, 64)
	topic, err2 := strconv.ParseInt(m[2], 10, 64)
	if err1 != nil || err2 != nil {
		return MetaTag{}, false
	}
	return MetaTag{SubjectID: subject, TopicID: topic}, true
}

// FormatMetaTag renders a tag in the form ParseMetaTag accepts.
func FormatMetaTag(subjectName string, subjectID int64, topicTitle string, topicID int64) string {
	return fmt.Sprintf("<!-- [meta] subject: %s (id: %d) | topic: %s (id: %d) -->",
		subjectName, subjectID, topicTitle, topicID)
}

// MetaTagFormat is the template shown to the assistant.
const MetaTagFormat = "<!-- [meta] subject: <name> (id: <subject_id>) | topic: <title> (id: <topic_id>) -->"
