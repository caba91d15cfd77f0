// healthcheck probes a running fitdb server and exits 0/1, for
// container HEALTHCHECK directives. fasthttp keeps the probe lean.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	url := flag.String("url", "http://127.0.0.1:8080/healthz", "health endpoint to probe")
	timeout := flag.Duration("timeout", 3*time.Second, "probe timeout")
	flag.Parse()

	status, body, err := fasthttp.GetTimeout(nil, *url, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
	if status != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: status %d: %s\n", status, body)
		os.Exit(1)
	}
	fmt.Println("ok")
}
