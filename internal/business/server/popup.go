package server

import (
	"context"
	"html/template"
	"time"

	"github.com/finledger/auth-callback/internal/callback"
)

const popupTemplateName = "popup"

// popupTemplate posts the outcome to the opener and closes the popup. The
// message is JSON encoded by html/template in the script context.
var popupTemplate = template.Must(template.New(popupTemplateName).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Signing in</title></head>
<body>
<script>
(function () {
  var message = {{.Message}};
  if (window.opener) {
    window.opener.postMessage(message, {{.TargetOrigin}});
  }
  setTimeout(function () { window.close(); }, {{.CloseDelayMs}});
})();
</script>
</body>
</html>
`))

type popupPage struct {
	Message      callback.Message
	TargetOrigin string
	CloseDelayMs int64
}

// pageWindow records what the flow delivered so the handler can answer with
// either a redirect or the popup page.
type pageWindow struct {
	opener     bool
	message    *callback.Message
	closeDelay time.Duration
	target     string
}

var _ callback.Window = (*pageWindow)(nil)

func (w *pageWindow) HasOpener() bool {
	return w.opener
}

func (w *pageWindow) NotifyOpener(_ context.Context, msg callback.Message) error {
	w.message = &msg
	return nil
}

func (w *pageWindow) CloseAfter(_ context.Context, delay time.Duration) {
	w.closeDelay = delay
}

// Navigate answers with a redirect whether or not the target is external.
func (w *pageWindow) Navigate(_ context.Context, target string, _ bool) {
	w.target = target
}
