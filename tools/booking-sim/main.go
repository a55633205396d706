// Command booking-sim mints a customer token and sends one booking request,
// optionally several at once to exercise the single-winner path.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/md-rashed-zaman/sessionbook/libs/auth"
)

func main() {
	var (
		baseURL  = flag.String("base-url", getenv("BASE_URL", "http://localhost:8083"), "booking service base url")
		secret   = flag.String("secret", getenv("JWT_SECRET", ""), "HS256 signing secret")
		customer = flag.String("customer-id", getenv("CUSTOMER_ID", ""), "customer profile id")
		provider = flag.String("provider-id", getenv("PROVIDER_ID", ""), "provider id")
		service  = flag.String("service-id", getenv("SERVICE_ID", ""), "service id")
		date     = flag.String("date", time.Now().AddDate(0, 0, 1).Format("2006-01-02"), "YYYY-MM-DD")
		start    = flag.String("start", "09:00", "session start HH:MM")
		end      = flag.String("end", "09:30", "session end HH:MM")
		key      = flag.String("idempotency-key", "", "Idempotency-Key header; empty sends none")
		parallel = flag.Int("parallel", 1, "concurrent identical requests, each with its own key")
	)
	flag.Parse()

	for name, v := range map[string]string{"JWT_SECRET": *secret, "CUSTOMER_ID": *customer, "PROVIDER_ID": *provider, "SERVICE_ID": *service} {
		if strings.TrimSpace(v) == "" {
			fatal(name + " is required")
		}
	}

	token, err := auth.SignHS256(auth.Claims{
		Role:      auth.RoleCustomer,
		ProfileID: *customer,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "booking-sim",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
		},
	}, *secret)
	if err != nil {
		fatal(err.Error())
	}

	payload, err := json.Marshal(map[string]string{
		"provider_id": *provider,
		"service_id":  *service,
		"date":        *date,
		"start_time":  *start,
		"end_time":    *end,
	})
	if err != nil {
		fatal(err.Error())
	}

	n := max(*parallel, 1)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		k := *key
		if n > 1 {
			k = uuid.NewString()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, body, err := send(*baseURL, token, k, payload)
			if err != nil {
				fmt.Fprintf(os.Stderr, "request %d: %v\n", i, err)
				return
			}
			fmt.Printf("request=%d status=%d body=%s\n", i, status, strings.TrimSpace(body))
		}()
	}
	wg.Wait()
}

func send(baseURL, token, key string, payload []byte) (int, string, error) {
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+"/customer/bookings", bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), err
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
