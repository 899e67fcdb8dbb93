package deploy

import "strings"

// MessageData fills the commit message template.
type MessageData struct {
	RunID  string
	Ref    string
	Commit string
}

// RenderMessage expands {run_id}, {ref}, {commit} and {short_commit} in tmpl. An
// unknown commit renders as "local".
func RenderMessage(tmpl string, d MessageData) string {
	commit := d.Commit
	if commit == "" {
		commit = "local"
	}
	short := commit
	if len(short) > 8 {
		short = short[:8]
	}
	return strings.NewReplacer(
		"{run_id}", d.RunID,
		"{ref}", d.Ref,
		"{commit}", commit,
		"{short_commit}", short,
	).Replace(tmpl)
}
