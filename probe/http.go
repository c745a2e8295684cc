package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/carvectf/canary/config"
	"github.com/carvectf/canary/template"
)

// responseBodyLimit bounds how much body we read when checking Regex,
// mirroring the teacher's io.LimitReader(resp.Body, m.responseBodyLimit)
// (validator/http_resp_checker.go).
const responseBodyLimit = 1 << 20 // 1 MiB

// HttpEvaluator issues one HTTP request and validates status/regex
// (spec.md §4.1). TLS verification is disabled by design: targets are
// intentionally weakly configured CTF boxes.
type HttpEvaluator struct {
	Spec config.HttpSpec
}

func (e *HttpEvaluator) Evaluate(ctx context.Context, hostname string, creds Credentials) Outcome {
	return withTimeout(ctx, e.Spec.Timeout, func(ctx context.Context) Outcome {
		return e.evaluate(ctx, hostname, creds)
	})
}

func (e *HttpEvaluator) evaluate(ctx context.Context, hostname string, creds Credentials) Outcome {
	values := template.Values{
		TeamName:       creds.TeamName,
		BoxName:        creds.BoxName,
		IP:             hostname,
		Username:       creds.Username,
		Password:       creds.Password,
		HasCredentials: creds.Available,
	}

	rawURL, err := template.Resolve("http", e.Spec.URL, values)
	if err != nil {
		return Outcome{Success: false, Message: "no creds"}
	}
	regex, err := template.Resolve("http", e.Spec.Regex, values)
	if err != nil {
		return Outcome{Success: false, Message: "no creds"}
	}

	targetURL, err := e.buildURL(hostname, rawURL)
	if err != nil {
		return Outcome{Success: false, Message: fmt.Sprintf("invalid url: %v", err)}
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // targets are intentionally weakly configured
		},
	}

	reqBody, err := e.body(values)
	if err != nil {
		return Outcome{Success: false, Message: "no creds"}
	}

	req, err := http.NewRequestWithContext(ctx, e.Spec.Method, targetURL, reqBody)
	if err != nil {
		return Outcome{Success: false, Message: fmt.Sprintf("invalid request: %v", err)}
	}
	if e.Spec.Method == http.MethodPost && len(e.Spec.Forms) > 0 {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTimeoutErr(err) {
			return Outcome{Success: false, Message: "timeout"}
		}
		return Outcome{Success: false, Message: fmt.Sprintf("connect refused: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != e.Spec.Code {
		return Outcome{Success: false, Message: fmt.Sprintf("status=%d want %d", resp.StatusCode, e.Spec.Code)}
	}

	if regex == "" {
		return Outcome{Success: true, Message: "ok"}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		if isTimeoutErr(err) {
			return Outcome{Success: false, Message: "timeout"}
		}
		return Outcome{Success: false, Message: fmt.Sprintf("body read error: %v", err)}
	}

	matched, err := regexp.Match(regex, body)
	if err != nil {
		return Outcome{Success: false, Message: fmt.Sprintf("invalid regex: %v", err)}
	}
	if !matched {
		return Outcome{Success: false, Message: "regex miss"}
	}
	return Outcome{Success: true, Message: "ok"}
}

func (e *HttpEvaluator) buildURL(hostname, rawURL string) (string, error) {
	if u, err := url.Parse(rawURL); err == nil && u.IsAbs() {
		return rawURL, nil
	}
	path := rawURL
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + hostname + path, nil
}

func (e *HttpEvaluator) body(values template.Values) (io.Reader, error) {
	if e.Spec.Method != http.MethodPost || len(e.Spec.Forms) == 0 {
		return nil, nil
	}
	form := url.Values{}
	for k, v := range e.Spec.Forms {
		resolved, err := template.Resolve("http", v, values)
		if err != nil {
			return nil, err
		}
		form.Set(k, resolved)
	}
	return strings.NewReader(form.Encode()), nil
}

func isTimeoutErr(err error) bool {
	if err == nil {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	return false
}
