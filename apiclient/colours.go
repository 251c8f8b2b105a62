package apiclient

import "fmt"

const (
	green      = "\033[32m"
	yellow     = "\033[33m"
	blue       = "\033[34m"
	magenta    = "\033[35m"
	cyan       = "\033[36m"
	resetColor = "\033[0m"
)

var methodColors = map[string]string{
	"GET":    green,
	"POST":   blue,
	"PUT":    cyan,
	"DELETE": yellow,
	"PATCH":  magenta,
}

// colouredMethod pads the method and colours it for the development console
func colouredMethod(method string) string {
	color, ok := methodColors[method]
	if !ok {
		return method
	}
	return fmt.Sprintf("%s%-6s%s", color, method, resetColor)
}
