package lor

import (
	"fmt"
	"net/url"
	"time"
)

// SessionCookie is the forum's session token cookie.
const SessionCookie = "JSESSIONID"

// EnsureSession makes sure the jar carries a usable session for the user.
// A cookie expiring within the client timeout (or an empty jar) forces a
// fresh login; otherwise a plain GET / touches the session. The jar is
// re-saved either way so the refreshed expiry survives.
func (c *Client) EnsureSession(nick, passwd string, timeout time.Duration) error {
	if c.jar == nil {
		return fmt.Errorf("no cookie jar attached")
	}
	if c.jar.Empty() || c.jar.ExpiresWithin(timeout) {
		form := url.Values{
			"nick":   {nick},
			"passwd": {passwd},
		}
		prev := c.jar.Get(SessionCookie)
		body, err := c.PostForm("/login.jsp", form)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		// the jar stores a new cookie for every Set-Cookie it receives, so
		// an absent or unchanged session cookie means the login set none
		if ck := c.jar.Get(SessionCookie); ck == nil || ck == prev {
			if title := PageTitle(body); title != "" {
				return fmt.Errorf("login failed: %s", title)
			}
			return fmt.Errorf("login failed: no %s cookie", SessionCookie)
		}
	} else {
		if _, err := c.Get("/", nil); err != nil {
			return fmt.Errorf("session touch: %w", err)
		}
	}
	return c.jar.Save()
}

// SessionID returns the current session token, empty when absent.
func (c *Client) SessionID() string {
	if c.jar == nil {
		return ""
	}
	if ck := c.jar.Get(SessionCookie); ck != nil {
		return ck.Value
	}
	return ""
}
