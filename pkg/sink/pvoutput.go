// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jmcp/jfy-monitor/pkg/jfy"
)

// PVOutputURL is the add status endpoint of pvoutput.org
const PVOutputURL = "http://pvoutput.org/service/r2/addstatus.jsp"

// PVOutput keeps the latest non-zero sample of one inverter and uploads it
// when Upload is called. Uploads are not retried.
type PVOutput struct {
	apiKey   string
	systemID string
	url      string
	client   *http.Client

	mu     sync.Mutex
	latest *Sample
	sent   time.Time
}

// NewPVOutput creates an uploader for one PVOutput system
func NewPVOutput(apiKey, systemID string) *PVOutput {
	return &PVOutput{
		apiKey:   apiKey,
		systemID: systemID,
		url:      PVOutputURL,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// SystemID returns the PVOutput system this uploader reports to
func (p *PVOutput) SystemID() string {
	return p.systemID
}

// Write remembers s for the next upload
func (p *PVOutput) Write(_ context.Context, s Sample) error {
	if s.Readings.IsZero() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = &s
	return nil
}

// StatusForm builds the addstatus form for s. The lifetime energy counter
// counts 100 Wh per step, so v1 is the raw count ×100 in cumulative Wh,
// which is ten times the scaled 10Wh value.
func StatusForm(s Sample) url.Values {
	r := s.Readings
	form := url.Values{}
	form.Set("d", s.Time.Format("20060102"))
	form.Set("t", s.Time.Format("15:04"))
	form.Set("v1", strconv.FormatUint(uint64(r.Raw(jfy.EnergyGenerated))*100, 10))
	form.Set("c1", "1")
	form.Set("v2", strconv.FormatFloat(r.Scaled(jfy.PowerGenerated), 'f', 1, 64))
	form.Set("v5", strconv.FormatFloat(r.Scaled(jfy.Temperature), 'f', 1, 64))
	form.Set("v6", strconv.FormatFloat(r.Scaled(jfy.VoltageDC), 'f', 1, 64))
	return form
}

// Upload posts the latest sample. It does nothing when there is no sample
// newer than the last upload.
func (p *PVOutput) Upload(ctx context.Context) error {
	p.mu.Lock()
	latest := p.latest
	sent := p.sent
	p.mu.Unlock()

	if latest == nil || !latest.Time.After(sent) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, strings.NewReader(StatusForm(*latest).Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Pvoutput-Apikey", p.apiKey)
	req.Header.Set("X-Pvoutput-SystemId", p.systemID)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pvoutput upload: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pvoutput upload: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	p.mu.Lock()
	p.sent = latest.Time
	p.mu.Unlock()
	return nil
}

// Close does nothing; pending samples are dropped
func (p *PVOutput) Close() error {
	return nil
}
