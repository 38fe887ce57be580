package signalr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// connectionData is the hub descriptor array sent on both the handshake
// and the socket upgrade. The feed exposes exactly one hub.
var connectionData = fmt.Sprintf(`[{"name":"%s"}]`, HubName)

// Negotiation is the output of a successful handshake: everything the
// stream client needs to open the socket.
type Negotiation struct {
	Token  string
	Cookie string
	// Query is the encoded query string for the socket upgrade.
	Query string
	// Header is the required header set, including the replayed
	// session cookie.
	Header http.Header
}

// negotiateResponse mirrors the handshake response body. Only the token
// matters; the rest of the fields are transport hints we do not use.
type negotiateResponse struct {
	ConnectionToken string `json:"ConnectionToken"`
}

// Negotiator performs the HTTP handshake that precedes the socket
// connection. Stateless; safe for repeated use across reconnects.
type Negotiator struct {
	httpClient *http.Client
	baseURL    string // e.g. https://host/signalr
	logger     *zap.Logger
}

func NewNegotiator(baseURL string, logger *zap.Logger) *Negotiator {
	return &Negotiator{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// Negotiate requests a connection token and derives the socket query
// string and header set. All failures wrap ErrNegotiate.
func (n *Negotiator) Negotiate(ctx context.Context) (*Negotiation, error) {
	params := url.Values{
		"connectionData": {connectionData},
		"clientProtocol": {ClientProtocol},
	}

	reqURL := n.baseURL + "/negotiate?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", ErrNegotiate, err)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNegotiate, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrNegotiate, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrNegotiate, resp.StatusCode)
	}

	var negotiated negotiateResponse
	if err := json.Unmarshal(body, &negotiated); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrNegotiate, err)
	}
	if negotiated.ConnectionToken == "" {
		return nil, ErrMissingToken
	}

	cookie := strings.Join(resp.Header.Values("Set-Cookie"), "; ")

	query := url.Values{
		"clientProtocol": {ClientProtocol},
		"transport":      {"webSockets"},
		"connectionToken": {
			negotiated.ConnectionToken,
		},
		"connectionData": {connectionData},
	}

	header := http.Header{}
	header.Set("User-Agent", "BestHTTP")
	header.Set("Accept-Encoding", "gzip,identity")
	if cookie != "" {
		header.Set("Cookie", cookie)
	}

	n.logger.Debug("negotiated connection",
		zap.String("token", maskToken(negotiated.ConnectionToken)),
		zap.Bool("cookie", cookie != ""),
	)

	return &Negotiation{
		Token:  negotiated.ConnectionToken,
		Cookie: cookie,
		Query:  query.Encode(),
		Header: header,
	}, nil
}

// maskToken masks all but the first 4 characters of a connection token
// for logging.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
