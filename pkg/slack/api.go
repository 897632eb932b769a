// Copyright 2024-2026 Aiku AI

package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultAPIBaseURL = "https://slack.com/api"

// rateLimitRetryMax is the cutoff for transparently absorbing a rate-limit
// response during pagination. Advised delays at or above this are propagated
// as ordinary remote errors instead of being slept through: callers must be
// told about long waits rather than having them absorbed silently. Flagged
// for product review; do not change without revisiting callers.
const rateLimitRetryMax = 5 * time.Second

// API is the Slack RPC-style HTTP client. Every call POSTs a form-encoded
// body with the configured token injected and parses the JSON envelope.
// There is no retry at this layer; the only automatic retry lives in the
// rate-limit branch of CallPaginated.
type API struct {
	hc      *http.Client
	baseURL string
	cfg     *Config
	log     zerolog.Logger

	// sleep suspends the calling flow during pagination rate-limit retries.
	// Overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAPI creates a Slack API client from the given config.
func NewAPI(cfg *Config, log zerolog.Logger) *API {
	hc := &http.Client{}
	if proxy := cfg.proxyURL(); proxy != nil {
		hc.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}
	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	return &API{
		hc:      hc,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		cfg:     cfg,
		log:     log.With().Str("component", "api").Logger(),
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Call invokes a single API method. It fails with *TransportError on any
// non-2xx status other than 429, and with *RemoteError when the parsed
// envelope carries an error field. On a remote error the envelope is still
// returned so callers can inspect it.
func (a *API) Call(ctx context.Context, method string, params url.Values) (Envelope, error) {
	form := url.Values{}
	for key, vals := range params {
		form[key] = vals
	}
	form.Set("token", a.cfg.Token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/"+method,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	a.log.Debug().Str("method", method).Msg("Calling Slack API")
	resp, err := a.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	// 429 responses carry a parseable rate-limit envelope and are handled
	// like any other remote error below.
	if resp.StatusCode != http.StatusTooManyRequests &&
		(resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, &TransportError{
			Method:     method,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Header:     resp.Header,
		}
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", method, err)
	}

	if code := env.ErrorCode(); code != "" {
		return env, &RemoteError{Method: method, Code: code, RetryAfter: env.RetryAfter()}
	}
	return env, nil
}

// CallPaginated invokes a cursor-paginated API method and follows the cursor
// until exhaustion, merging each page's resultField collection onto the first
// page's in arrival order.
//
// A follow-up page that comes back "ratelimited" with an advised delay under
// rateLimitRetryMax suspends the calling flow for that delay and retries the
// same cursor; the retry does not count against the anti-loop guard. Longer
// advised delays propagate as remote errors. A cursor that stops advancing
// halts the loop and returns what has been accumulated so far.
func (a *API) CallPaginated(ctx context.Context, method string, params url.Values, resultField string) (Envelope, error) {
	merged := url.Values{}
	for key, vals := range params {
		merged[key] = vals
	}

	result, err := a.Call(ctx, method, merged)
	if err != nil {
		return result, err
	}

	nextCursor := result.NextCursor()
	oldCursor := ""

	for nextCursor != "" && nextCursor != oldCursor {
		oldCursor = nextCursor
		merged.Set("cursor", nextCursor)

		page, err := a.Call(ctx, method, merged)
		if err != nil {
			var remoteErr *RemoteError
			if errors.As(err, &remoteErr) &&
				remoteErr.Code == "ratelimited" &&
				remoteErr.RetryAfter < rateLimitRetryMax {
				a.log.Debug().
					Str("method", method).
					Dur("retry_after", remoteErr.RetryAfter).
					Msg("Rate limited during pagination, retrying page")
				if serr := a.sleep(ctx, remoteErr.RetryAfter); serr != nil {
					return result, serr
				}
				// Clear the previous-cursor marker so the retried cursor is
				// not mistaken for a repeat by the anti-loop guard.
				oldCursor = ""
				continue
			}
			return result, err
		}

		nextCursor = page.NextCursor()
		result[resultField] = append(result.Slice(resultField), page.Slice(resultField)...)
	}

	return result, nil
}

// RTMStart performs the bootstrap handshake and returns the session
// descriptor: team metadata, the adapter's own identity, and the streaming
// endpoint URL. Any failure is fatal to the connection attempt.
func (a *API) RTMStart(ctx context.Context) (*TeamData, error) {
	env, err := a.Call(ctx, "rtm.start", nil)
	if err != nil {
		return nil, fmt.Errorf("rtm.start failed: %w", err)
	}
	if !env.OK() {
		return nil, &RemoteError{Method: "rtm.start", Code: env.ErrorCode()}
	}

	team := env.Map("team")
	data := &TeamData{
		Self: UserFromData(env.Map("self")),
	}
	data.TeamID, _ = team["id"].(string)
	data.TeamName, _ = team["name"].(string)
	data.TeamDomain, _ = team["domain"].(string)
	data.WebSocketURL, _ = env["url"].(string)

	a.log.Debug().
		Str("team_id", data.TeamID).
		Str("self_id", data.Self.ID).
		Msg("Bootstrap handshake complete")
	return data, nil
}

// UserInfo fetches the full profile of a single user.
func (a *API) UserInfo(ctx context.Context, userID string) (User, error) {
	params := url.Values{}
	params.Set("user", userID)
	env, err := a.Call(ctx, "users.info", params)
	if err != nil {
		return User{}, err
	}
	return UserFromData(env.Map("user")), nil
}

// IMOpen opens (or resumes) a direct-message conversation with a user and
// returns its channel ID.
func (a *API) IMOpen(ctx context.Context, userID string) (string, error) {
	params := url.Values{}
	params.Set("user", userID)
	env, err := a.Call(ctx, "im.open", params)
	if err != nil {
		return "", err
	}
	channelID, _ := env.Map("channel")["id"].(string)
	return channelID, nil
}

// ConversationsList lists conversations of the given types, following
// pagination to exhaustion. The merged collection is under "channels".
func (a *API) ConversationsList(ctx context.Context, types []string, params url.Values) (Envelope, error) {
	merged := url.Values{}
	for key, vals := range params {
		merged[key] = vals
	}
	if len(types) == 0 {
		types = []string{"public_channel"}
	}
	merged.Set("types", strings.Join(types, ","))
	return a.CallPaginated(ctx, "conversations.list", merged, "channels")
}

// ChannelsList lists public channels.
func (a *API) ChannelsList(ctx context.Context, params url.Values) (Envelope, error) {
	return a.ConversationsList(ctx, []string{"public_channel"}, params)
}

// GroupsList lists private channels. The result is aliased under "groups"
// for callers expecting the legacy field name.
func (a *API) GroupsList(ctx context.Context, params url.Values) (Envelope, error) {
	env, err := a.ConversationsList(ctx, []string{"private_channel"}, params)
	if env != nil {
		env["groups"] = env.Slice("channels")
	}
	return env, err
}

// MpimList lists multi-party direct messages, aliased under "groups".
func (a *API) MpimList(ctx context.Context, params url.Values) (Envelope, error) {
	env, err := a.ConversationsList(ctx, []string{"mpim"}, params)
	if env != nil {
		env["groups"] = env.Slice("channels")
	}
	return env, err
}

// IMList lists direct-message conversations, aliased under "ims".
func (a *API) IMList(ctx context.Context, params url.Values) (Envelope, error) {
	env, err := a.ConversationsList(ctx, []string{"im"}, params)
	if env != nil {
		env["ims"] = env.Slice("channels")
	}
	return env, err
}

// PostMessage posts text to a conversation via the REST API, forwarding the
// configured formatting flags. extra parameters (e.g. thread_ts) are merged
// in last and win.
func (a *API) PostMessage(ctx context.Context, channelID, text string, extra url.Values) (Envelope, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("as_user", "true")
	params.Set("text", text)
	for key, vals := range a.cfg.postMessageValues() {
		params[key] = vals
	}
	for key, vals := range extra {
		params[key] = vals
	}
	return a.Call(ctx, "chat.postMessage", params)
}

// PostInThread posts text as a threaded reply.
func (a *API) PostInThread(ctx context.Context, channelID, text, threadTS string) (Envelope, error) {
	extra := url.Values{}
	extra.Set("thread_ts", threadTS)
	return a.PostMessage(ctx, channelID, text, extra)
}

// SendAttachments posts pre-serialized rich attachments to a conversation.
// Marshalling the attachment payloads is the host's concern.
func (a *API) SendAttachments(ctx context.Context, channelID, attachmentsJSON string) (Envelope, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("as_user", "true")
	params.Set("attachments", attachmentsJSON)
	return a.Call(ctx, "chat.postMessage", params)
}

// SetTopic sets a channel's topic.
func (a *API) SetTopic(ctx context.Context, channelID, topic string) (Envelope, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("topic", topic)
	return a.Call(ctx, "channels.setTopic", params)
}
