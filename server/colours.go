package server

// ANSI colours for the route table and file errors printed at startup.
const (
	Red        = "\033[31m"
	Green      = "\033[32m"
	Blue       = "\033[34m"
	Gray       = "\033[90m"
	ResetColor = "\033[0m"
)

// The portal only registers GET and POST routes.
var methodColors = map[string]string{
	"GET":  Green,
	"POST": Blue,
}
