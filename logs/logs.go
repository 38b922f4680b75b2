/******************************************************************************
 *
 *  Description :
 *    Package exposes info, warning and error loggers.
 *
 *****************************************************************************/
package logs

import (
	"io"
	"log"
	"os"
)

var (
	Info *log.Logger
	Warn *log.Logger
	Err  *log.Logger
)

func init() {
	Init(os.Stdout)
}

// Init reassigns the loggers to the given destination.
func Init(out io.Writer) {
	Info = log.New(out, "I", log.LstdFlags|log.Lshortfile)
	Warn = log.New(out, "W", log.LstdFlags|log.Lshortfile)
	Err = log.New(out, "E", log.LstdFlags|log.Lshortfile)
}
