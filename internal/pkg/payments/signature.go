package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
)

const (
	defaultFreshnessWindow = 5 * time.Minute
	maxFutureSkew          = 1 * time.Minute
)

// VerifyResult is the accept/reject decision for an inbound webhook.
type VerifyResult struct {
	Accepted bool
	Reason   string
}

// Verifier authenticates inbound webhooks: HMAC-SHA256 signature check,
// timestamp freshness window and an optional source-IP allow-list. It keeps
// no state and persists nothing.
type Verifier struct {
	Secret          string
	FreshnessWindow time.Duration
	EnforceIP       bool
	allowedNets     []*net.IPNet

	// now is swappable for tests.
	now func() time.Time
}

// NewVerifierFromEnv builds a Verifier from MP_WEBHOOK_SECRET,
// WEBHOOK_IP_ALLOWLIST (comma-separated CIDRs) and WEBHOOK_IP_CHECK. The IP
// check defaults to off outside production.
func NewVerifierFromEnv() *Verifier {
	v := &Verifier{
		Secret:          strings.TrimSpace(env.GetEnv("MP_WEBHOOK_SECRET", "")),
		FreshnessWindow: defaultFreshnessWindow,
		EnforceIP:       env.GetEnv("WEBHOOK_IP_CHECK", "false") == "true" && !env.IsDev(),
		now:             time.Now,
	}
	if raw := strings.TrimSpace(env.GetEnv("WEBHOOK_FRESHNESS_MINUTES", "")); raw != "" {
		if mins, err := strconv.Atoi(raw); err == nil && mins > 0 {
			v.FreshnessWindow = time.Duration(mins) * time.Minute
		}
	}
	for _, cidr := range strings.Split(env.GetEnv("WEBHOOK_IP_ALLOWLIST", ""), ",") {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
			v.allowedNets = append(v.allowedNets, ipNet)
		}
	}
	return v
}

// Verify checks the x-signature header ("ts=<unix>,v1=<hex>") against the
// HMAC-SHA256 of the canonical manifest built from the notification's
// data.id, the x-request-id header and the signed timestamp. The comparison
// is constant-time and the timestamp must fall inside the freshness window.
func (v *Verifier) Verify(signatureHeader, requestID, dataID, remoteIP string) VerifyResult {
	if v.EnforceIP && !v.ipAllowed(remoteIP) {
		return VerifyResult{Reason: fmt.Sprintf("source ip %s not in allow-list", remoteIP)}
	}
	if strings.TrimSpace(v.Secret) == "" {
		return VerifyResult{Reason: "webhook secret is not configured"}
	}

	ts, sig, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return VerifyResult{Reason: err.Error()}
	}

	now := v.now()
	signedAt := time.Unix(ts, 0)
	if now.Sub(signedAt) > v.FreshnessWindow {
		return VerifyResult{Reason: "signature timestamp outside freshness window"}
	}
	if signedAt.Sub(now) > maxFutureSkew {
		return VerifyResult{Reason: "signature timestamp is in the future"}
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%d;",
		strings.ToLower(strings.TrimSpace(dataID)), strings.TrimSpace(requestID), ts)
	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write([]byte(manifest))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return VerifyResult{Reason: "signature mismatch"}
	}

	return VerifyResult{Accepted: true}
}

func (v *Verifier) ipAllowed(remoteIP string) bool {
	ip := net.ParseIP(strings.TrimSpace(remoteIP))
	if ip == nil {
		return false
	}
	for _, ipNet := range v.allowedNets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// parseSignatureHeader splits "ts=1704908010,v1=618c8534..." into the signed
// unix timestamp and the decoded signature bytes.
func parseSignatureHeader(header string) (int64, []byte, error) {
	var tsRaw, v1Raw string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "ts":
			tsRaw = strings.TrimSpace(value)
		case "v1":
			v1Raw = strings.TrimSpace(value)
		}
	}
	if tsRaw == "" || v1Raw == "" {
		return 0, nil, fmt.Errorf("malformed x-signature header")
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("malformed signature timestamp")
	}
	sig, err := hex.DecodeString(strings.ToLower(v1Raw))
	if err != nil {
		return 0, nil, fmt.Errorf("malformed signature encoding")
	}
	return ts, sig, nil
}
