package action

import (
	"testing"
	"time"

	"mxops/internal/model"
)

func TestRetryDelay_LinearBackoff(t *testing.T) {
	if retryDelay(1) != 1*time.Minute {
		t.Errorf("delay after 1st failure = %v, want 1m", retryDelay(1))
	}
	if retryDelay(2) != 2*time.Minute {
		t.Errorf("delay after 2nd failure = %v, want 2m", retryDelay(2))
	}
}

func TestTerminalAfterFailure(t *testing.T) {
	// 致命错误第一次就终结
	if !terminalAfterFailure(1, true) {
		t.Error("fatal error on attempt 1 must terminate")
	}
	// 非致命错误用满3次
	if terminalAfterFailure(1, false) || terminalAfterFailure(2, false) {
		t.Error("non-fatal failures below the limit must requeue")
	}
	if !terminalAfterFailure(MaxAttempts, false) {
		t.Error("reaching max attempts must terminate")
	}
}

func TestHeartbeatStale(t *testing.T) {
	now := time.Now()

	fresh := now.Add(-10 * time.Second)
	if heartbeatStale(&fresh, now) {
		t.Error("heartbeat 10s old is not stale")
	}

	stale := now.Add(-46 * time.Second)
	if !heartbeatStale(&stale, now) {
		t.Error("heartbeat 46s old is stale")
	}

	if !heartbeatStale(nil, now) {
		t.Error("missing heartbeat counts as stale")
	}
}

func TestDefaultRetryWindow(t *testing.T) {
	if DefaultRetryWindow(model.CloudActionTypeStart) != 30*time.Minute {
		t.Error("start window should be 30m")
	}
	if DefaultRetryWindow(model.CloudActionTypeDeploy) != 90*time.Minute {
		t.Error("deploy window should be 90m")
	}
	if DefaultRetryWindow(model.CloudActionTypeTransport) != 60*time.Minute {
		t.Error("transport window should be 60m")
	}
}
