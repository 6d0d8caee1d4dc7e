package handler

import (
	"html/template"
	"net/http"
)

// bridgePage is the popup's landing page after checkout. It reads the
// outcome from its own query string, posts one structured message to the
// opener and closes itself. The opener validates the message type and order
// id before acting; this page carries no secrets.
var bridgePage = template.Must(template.New("bridge").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Payment</title></head>
<body>
<p>Finishing up, you can close this window.</p>
<script>
(function () {
  var q = new URLSearchParams(window.location.search);
  var status = q.get("rental") || q.get("payment") || "cancel";
  if (status !== "success" && status !== "failed") { status = "cancel"; }
  var msg = {
    type: "uvfCheckout",
    status: status,
    orderId: q.get("order_id") || "",
    sessionId: q.get("session_id") || "",
    gatewayId: q.get("gateway") || ""
  };
  if (window.opener) {
    window.opener.postMessage(msg, "*");
  }
  window.close();
})();
</script>
</body>
</html>`))

// BridgeHandler serves the popup return page.
type BridgeHandler struct{}

func NewBridgeHandler() *BridgeHandler { return &BridgeHandler{} }

func (h *BridgeHandler) Return(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = bridgePage.Execute(w, nil)
}
