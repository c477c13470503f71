package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openkcm/common-sdk/pkg/fingerprint"

	slogctx "github.com/veqryn/slog-context"

	"github.com/finledger/auth-callback/internal/callback"
	"github.com/finledger/auth-callback/internal/config"
	"github.com/finledger/auth-callback/internal/middleware/client"
	"github.com/finledger/auth-callback/internal/oautherr"
	"github.com/finledger/auth-callback/internal/openapi"
	"github.com/finledger/auth-callback/internal/serviceerr"
	"github.com/finledger/auth-callback/internal/storage"
)

// openAPIServer is an implementation of the OpenAPI interface.
type openAPIServer struct {
	cfg *config.Config
	svc Services
	now func() time.Time
}

// Ensure openAPIServer implements [openapi.ServerInterface]
var _ openapi.ServerInterface = (*openAPIServer)(nil)

func newOpenAPIServer(cfg *config.Config, svc Services) *openAPIServer {
	return &openAPIServer{
		cfg: cfg,
		svc: svc,
		now: time.Now,
	}
}

// Callback implements openapi.ServerInterface.
func (s *openAPIServer) Callback(c *gin.Context, params openapi.CallbackParams) {
	ctx := c.Request.Context()

	clientID, ok := s.clientID(c)
	if !ok {
		return
	}

	w := &pageWindow{opener: s.isPopup(c, params.Popup)}
	req := callback.Request{
		Params: callback.Params{
			Code:       value(params.Code),
			State:      value(params.State),
			Error:      value(params.Error),
			Message:    value(params.Message),
			NewAuthURL: value(params.NewAuthUrl),
		}.Normalize(),
		ClientID: clientID,
		Cookies:  s.forwardedCookies(c.Request),
	}

	s.svc.Flow.Handle(ctx, req, s.svc.Storage.Scope(clientID), w)

	if w.opener {
		http.SetCookie(c.Writer, s.cfg.Cookies.ExpiredPopupCookie())
	}

	switch {
	case w.target != "":
		c.Redirect(http.StatusFound, w.target)
	case w.message != nil:
		c.HTML(http.StatusOK, popupTemplateName, popupPage{
			Message:      *w.message,
			TargetOrigin: s.cfg.Routes.OpenerOrigin,
			CloseDelayMs: w.closeDelay.Milliseconds(),
		})
	default:
		slogctx.Error(ctx, "Callback delivered nothing")
		abortWithError(c, serviceerr.ErrUnknown)
	}
}

// ClassifyError implements openapi.ServerInterface.
func (s *openAPIServer) ClassifyError(c *gin.Context, params openapi.ClassifyErrorParams) {
	cl := s.classify(params.Error, params.Message, params.NewAuthUrl)

	page := openapi.ErrorPage{
		Action:      cl.Action,
		AutoRetry:   cl.AutoRetry,
		Code:        cl.Code,
		Description: cl.Description,
		Known:       cl.Known,
		ManualRetry: oautherr.ResumeCountdown(cl, s.cfg.Signin.CountdownTicks).CanRetryManually(),
		Severity:    string(cl.Severity),
		Title:       cl.Title,
	}
	if cl.AutoRetry {
		page.Countdown = s.cfg.Signin.CountdownTicks
	}
	if cl.NewAuthURL != "" {
		page.NewAuthUrl = &cl.NewAuthURL
	}

	c.JSON(http.StatusOK, page)
}

// Countdown implements openapi.ServerInterface. It streams the automatic
// retry countdown as server-sent events and finally the URL to retry with.
// Errors that are not eligible get a single manual event.
func (s *openAPIServer) Countdown(c *gin.Context, params openapi.CountdownParams) {
	ctx := c.Request.Context()

	clientID, ok := s.clientID(c)
	if !ok {
		return
	}

	cl := s.classify(params.Error, params.Message, params.NewAuthUrl)
	if !cl.AutoRetry {
		c.SSEvent("manual", cl)
		return
	}

	st := s.svc.Storage.Scope(clientID)
	interval := s.cfg.Signin.CountdownInterval

	s.recordDeadline(ctx, st, s.now().Add(time.Duration(s.cfg.Signin.CountdownTicks)*interval))

	cd := oautherr.NewCountdown(s.cfg.Signin.CountdownTicks, interval)
	fire, err := cd.Run(ctx, cl, func(remaining int) {
		c.SSEvent("tick", gin.H{"remaining": remaining})
		c.Writer.Flush()
	})
	if err != nil {
		slogctx.Debug(ctx, "Countdown cancelled", "error", err)
		s.recordDeadline(context.WithoutCancel(ctx), st, s.now())

		return
	}

	if !fire {
		return
	}

	retryURL, err := s.retryURL(c, clientID, cl)
	cd.Finish()

	if err != nil {
		slogctx.Error(ctx, "Failed to build retry URL", "error", err)

		body, _ := toErrorModel(err)
		c.SSEvent("error", body)

		return
	}

	c.SSEvent("retry", gin.H{"url": retryURL})
}

// Retry implements openapi.ServerInterface. It is the manual "retry now"
// action, refused while an automatic retry countdown is running.
func (s *openAPIServer) Retry(c *gin.Context, params openapi.RetryParams) {
	ctx := c.Request.Context()

	clientID, ok := s.clientID(c)
	if !ok {
		return
	}

	cl := s.classify(params.Error, params.Message, params.NewAuthUrl)

	if !s.canRetryManually(ctx, s.svc.Storage.Scope(clientID), cl) {
		slogctx.Info(ctx, "Manual retry requested during the countdown", "error_code", cl.Code)
		abortWithError(c, serviceerr.ErrRetryNotAvailable)

		return
	}

	retryURL, err := s.retryURL(c, clientID, cl)
	if err != nil {
		if serviceerr.CodeOf(err) == serviceerr.CodeUnknown {
			slogctx.Error(ctx, "Failed to build retry URL", "error", err)
		} else {
			slogctx.Warn(ctx, "Rejected retry request", "error", err)
		}

		abortWithError(c, err)

		return
	}

	if value(params.Popup) {
		popupCookie := s.cfg.Cookies.Popup
		popupCookie.Name = s.cfg.Cookies.PopupName()
		http.SetCookie(c.Writer, popupCookie.ToCookie("1"))
	}

	c.Redirect(http.StatusFound, retryURL)
}

// Session implements openapi.ServerInterface. It returns the auth state
// persisted for the client.
func (s *openAPIServer) Session(c *gin.Context) {
	ctx := c.Request.Context()

	clientID, ok := s.clientID(c)
	if !ok {
		return
	}

	st := s.svc.Storage.Scope(clientID)

	token, err := st.Get(ctx, storage.KeyAuthToken)
	if err != nil {
		if errors.Is(err, serviceerr.ErrStorageNotFound) {
			abortWithError(c, serviceerr.ErrNotFound)
			return
		}

		slogctx.Error(ctx, "Failed to load the session", "error", err)
		abortWithError(c, serviceerr.ErrUnknown)

		return
	}

	resp := openapi.Session{Token: token}

	if _, err := st.Get(ctx, storage.KeyRefreshToken); err == nil {
		resp.HasRefreshToken = true
	}

	if user, err := st.Get(ctx, storage.KeyUser); err == nil && json.Valid([]byte(user)) {
		resp.User = json.RawMessage(user)
	}

	c.JSON(http.StatusOK, resp)
}

// Logout implements openapi.ServerInterface.
func (s *openAPIServer) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	clientID, ok := s.clientID(c)
	if !ok {
		return
	}

	if err := s.svc.Storage.Scope(clientID).Clear(ctx); err != nil {
		slogctx.Error(ctx, "Failed to clear the session", "error", err)
		abortWithError(c, serviceerr.ErrUnknown)

		return
	}

	c.Status(http.StatusNoContent)
}

func (s *openAPIServer) classify(code, message, newAuthURL *string) oautherr.Classification {
	return s.svc.Catalog.Classify(value(code), value(message), value(newAuthURL))
}

func (s *openAPIServer) retryURL(c *gin.Context, clientID string, cl oautherr.Classification) (string, error) {
	ctx := c.Request.Context()

	deviceID, err := fingerprint.ExtractFingerprint(ctx)
	if err != nil {
		slogctx.Warn(ctx, "Failed to extract fingerprint", "error", err)
	}

	return s.svc.Retrier.RetryURL(ctx, cl, clientID, deviceID, s.svc.Storage.Scope(clientID))
}

// canRetryManually resumes the countdown another request may be running for
// the client from its recorded deadline.
func (s *openAPIServer) canRetryManually(ctx context.Context, st storage.Storage, cl oautherr.Classification) bool {
	remaining := 0

	val, err := st.Get(ctx, storage.KeyOAuthCountdownDeadline)
	switch {
	case err == nil:
		if deadline, err := strconv.ParseInt(val, 10, 64); err == nil {
			remaining = ticksUntil(time.UnixMilli(deadline).Sub(s.now()), s.cfg.Signin.CountdownInterval)
		}
	case !errors.Is(err, serviceerr.ErrStorageNotFound):
		slogctx.Warn(ctx, "Could not read the countdown deadline", "error", err)
	}

	return oautherr.ResumeCountdown(cl, remaining).CanRetryManually()
}

func (s *openAPIServer) recordDeadline(ctx context.Context, st storage.Storage, deadline time.Time) {
	err := st.Set(ctx, storage.KeyOAuthCountdownDeadline, strconv.FormatInt(deadline.UnixMilli(), 10))
	if err != nil {
		slogctx.Warn(ctx, "Could not record the countdown deadline", "error", err)
	}
}

func (s *openAPIServer) clientID(c *gin.Context) (string, bool) {
	clientID, err := client.IDFromContext(c.Request.Context())
	if err != nil {
		slogctx.Error(c.Request.Context(), "Failed to get client id from context", "error", err)
		abortWithError(c, serviceerr.ErrUnknown)

		return "", false
	}

	return clientID, true
}

func (s *openAPIServer) isPopup(c *gin.Context, popup *bool) bool {
	if value(popup) {
		return true
	}

	cookie, err := c.Cookie(s.cfg.Cookies.PopupName())

	return err == nil && cookie == "1"
}

// forwardedCookies are the request cookies without the ones this service
// owns; the rest may carry the backend session.
func (s *openAPIServer) forwardedCookies(r *http.Request) []*http.Cookie {
	cookies := r.Cookies()

	forwarded := make([]*http.Cookie, 0, len(cookies))
	for _, cookie := range cookies {
		switch cookie.Name {
		case s.cfg.Cookies.ClientName(), s.cfg.Cookies.PopupName():
			continue
		}

		forwarded = append(forwarded, cookie)
	}

	return forwarded
}

// ticksUntil rounds d up to whole intervals.
func ticksUntil(d, interval time.Duration) int {
	if d <= 0 || interval <= 0 {
		return 0
	}

	return int((d + interval - 1) / interval)
}

func value[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}

	return *p
}

// invalidParamsHandler answers requests whose parameters do not bind.
func invalidParamsHandler(c *gin.Context, err error, _ int) {
	slogctx.Debug(c.Request.Context(), "Invalid request parameters", "error", err)
	abortWithError(c, serviceerr.ErrInvalidRequest)
}

func toErrorModel(err error) (model openapi.ErrorModel, httpStatus int) {
	var serviceErr *serviceerr.Error
	if !errors.As(err, &serviceErr) {
		serviceErr = serviceerr.ErrUnknown
	}

	model = openapi.ErrorModel{Error: string(serviceErr.Err)}
	if desc := serviceErr.Description; desc != "" {
		model.ErrorDescription = &desc
	}

	return model, serviceErr.HTTPStatus()
}

func abortWithError(c *gin.Context, err error) {
	body, status := toErrorModel(err)
	c.AbortWithStatusJSON(status, body)
}
