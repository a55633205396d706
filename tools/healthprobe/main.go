// Command healthprobe checks the booking service's gRPC health endpoint and
// exits non-zero unless it reports SERVING. It is meant for container probes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/md-rashed-zaman/sessionbook/libs/grpcx"
)

func main() {
	var (
		addr    = flag.String("addr", getenv("GRPC_ADDR", "localhost:9093"), "gRPC address")
		service = flag.String("service", "", "service name; empty checks overall status")
		timeout = flag.Duration("timeout", 3*time.Second, "probe timeout")
	)
	flag.Parse()

	conn, err := grpcx.Dial(*addr, grpcx.DialOptions{})
	if err != nil {
		fatal(err.Error())
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: *service})
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("status=%s\n", resp.GetStatus())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
