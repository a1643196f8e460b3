package core

// Request names one guest function call.
type Request struct {
	Path     string
	Function string
	Args     []Arg
}
