package rest

import (
	"context"
	"log/slog"
	"strings"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
)

// DiscordgoRequester sends REST calls through a discordgo session, which
// owns the rate-limit buckets and retry policy. The session's websocket is
// never opened.
type DiscordgoRequester struct {
	session *discordgo.Session
	baseURL string
	log     *slog.Logger
}

// NewDiscordgoRequester authenticates with a bot token.
func NewDiscordgoRequester(token string, logger *slog.Logger) (*DiscordgoRequester, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.WrapIf(err, "creating discordgo session")
	}
	s.StateEnabled = false
	s.UserAgent = "DiscordBot (https://github.com/EasterCompany/dex-discord-gateway, 1.0)"
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DiscordgoRequester{
		session: s,
		baseURL: discordgo.EndpointAPI,
		log:     logger.With(slog.String("component", "rest")),
	}, nil
}

// SetBaseURL points requests at another API root.
func (r *DiscordgoRequester) SetBaseURL(u string) {
	r.baseURL = strings.TrimSuffix(u, "/") + "/"
}

func (r *DiscordgoRequester) Request(ctx context.Context, method, path string, body any) ([]byte, error) {
	url := r.baseURL + strings.TrimPrefix(path, "/")
	r.log.Debug("rest request", "method", method, "path", path)
	resp, err := r.session.RequestWithBucketID(method, url, body, bucketID(method, path), discordgo.WithContext(ctx))
	if err != nil {
		return nil, convert(method, path, err)
	}
	return resp, nil
}

// bucketID groups routes that share a rate limit: the major parameter
// (channel or guild id) stays, other ids collapse.
func bucketID(method, path string) string {
	parts := strings.Split(strings.TrimPrefix(strings.SplitN(path, "?", 2)[0], "/"), "/")
	for i := 2; i < len(parts); i++ {
		if isSnowflake(parts[i]) {
			parts[i] = ":id"
		}
	}
	if method == "DELETE" && len(parts) >= 4 && parts[2] == "messages" {
		return method + " /" + strings.Join(parts, "/")
	}
	return "/" + strings.Join(parts, "/")
}

func isSnowflake(s string) bool {
	if len(s) < 15 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func convert(method, path string, err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return errors.WrapIff(err, "%s %s", method, path)
	}
	herr := &HTTPError{Method: method, Path: path}
	if restErr.Response != nil {
		herr.StatusCode = restErr.Response.StatusCode
	}
	if restErr.Message != nil {
		herr.Code = restErr.Message.Code
		herr.Message = restErr.Message.Message
	}
	return herr
}
