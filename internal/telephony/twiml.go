package telephony

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go/twiml"
)

// StreamURL is the websocket address Twilio streams calls to, derived from
// the agent's public base URL
func StreamURL(publicURL string) (string, error) {
	u, err := url.Parse(publicURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid public URL %q", publicURL)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid public URL scheme %q", u.Scheme)
	}
	u.Path = StreamPath
	u.RawQuery = ""
	return u.String(), nil
}

// TwiMLHandler answers Twilio voice webhooks by connecting the call to the
// media stream at streamURL
func TwiMLHandler(streamURL string, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream := twiml.VoiceStream{
			Name: "voice-agent",
			Url:  streamURL,
		}
		connect := twiml.VoiceConnect{
			InnerElements: []twiml.Element{stream},
		}

		body, err := twiml.Voice([]twiml.Element{connect})
		if err != nil {
			logger.Error().Err(err).Msg("Failed to render TwiML")
			http.Error(w, "failed to render TwiML", http.StatusInternalServerError)
			return
		}

		logger.Info().Str("call_sid", r.FormValue("CallSid")).Str("from", r.FormValue("From")).Msg("Answering Twilio call")
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(body))
	}
}
