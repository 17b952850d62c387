package launcher

import (
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/warboot/internal/runtime"
)

// Report prints a failed result to w: one line normally, the whole cause
// chain in debug mode. A runtime invocation failure is reported by its root
// cause. Successful results print nothing.
func Report(w io.Writer, r Result) {
	if r.Err == nil {
		return
	}
	var inv *runtime.InvocationError
	if errors.As(r.Err, &inv) && !r.Debug {
		fmt.Fprintf(w, "error: %v\n", runtime.RootCause(inv))
		return
	}
	fmt.Fprintf(w, "error: %v\n", r.Err)
	if !r.Debug {
		return
	}
	chain := runtime.Chain(r.Err)
	for _, link := range chain[1:] {
		fmt.Fprintf(w, "  caused by: %v\n", link)
	}
	if root := runtime.RootCause(r.Err); root != nil && root != r.Err {
		fmt.Fprintf(w, "  root cause: %v (%T)\n", root, root)
	}
}
