package stage

// Stage names used in health reports, metrics labels, and log fields.
const (
	NameTransfer = "transfer"
	NameExtract  = "extract"
	NameInstall  = "install"
)

// Health reports whether a stage can run right now.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Check builds a Health record. Detail is dropped for ready stages.
func Check(name string, ready bool, detail string) Health {
	if ready {
		detail = ""
	}
	return Health{Name: name, Ready: ready, Detail: detail}
}
