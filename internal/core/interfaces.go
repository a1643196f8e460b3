package core

// SourceLoader retrieves guest source code.
type SourceLoader interface {
	Load(path string) (string, error)
}
