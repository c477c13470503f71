package config

import "net/http"

func (ct CookieTemplate) ToCookie(value string) *http.Cookie {
	var sameSite http.SameSite
	switch ct.SameSite {
	case CookieSameSiteNone:
		sameSite = http.SameSiteNoneMode
	case CookieSameSiteLax:
		sameSite = http.SameSiteLaxMode
	case CookieSameSiteStrict:
		sameSite = http.SameSiteStrictMode
	}

	return &http.Cookie{
		Name:     ct.Name,
		Value:    value,
		MaxAge:   ct.MaxAge,
		Path:     ct.Path,
		Domain:   ct.Domain,
		Secure:   ct.Secure,
		HttpOnly: ct.HTTPOnly,
		SameSite: sameSite,
	}
}

// ClientCookie identifies the browser the auth state belongs to.
func (c Cookies) ClientCookie(clientID string) *http.Cookie {
	ct := c.Client
	ct.Name = c.ClientName()

	return ct.ToCookie(clientID)
}

// ExpiredPopupCookie removes the popup marker once the popup is done.
func (c Cookies) ExpiredPopupCookie() *http.Cookie {
	ct := c.Popup
	ct.Name = c.PopupName()
	ct.MaxAge = -1

	return ct.ToCookie("")
}
