package loopback_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/drive-snapshot/loopback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const anyPort = "127.0.0.1:0"

var testClient = &http.Client{
	Timeout:   5 * time.Second,
	Transport: &http.Transport{DisableKeepAlives: true},
}

func get(t *testing.T, l *loopback.Listener, query string) (int, string) {
	t.Helper()
	resp, err := testClient.Get(fmt.Sprintf("http://%s/%s", l.Addr(), query))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func waitStopped(t *testing.T, l *loopback.Listener) {
	t.Helper()
	select {
	case <-l.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func requirePortFree(t *testing.T, addr string) {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err, "port still held")
	require.NoError(t, ln.Close())
}

func TestListener_CodeCaptured(t *testing.T) {
	captured := make(chan [2]string, 1)
	l := loopback.New()
	require.Equal(t, loopback.Idle, l.State())

	err := l.Start(anyPort, func(ctx context.Context, code, state string) error {
		captured <- [2]string{code, state}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, loopback.Listening, l.State())
	addr := l.Addr()

	status, body := get(t, l, "?scope=drive&code=ABC&state=xyz")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, loopback.SuccessMessage, body)
	got := <-captured
	require.Equal(t, "ABC", got[0])
	require.Equal(t, "xyz", got[1])

	waitStopped(t, l)
	require.Equal(t, loopback.Stopped, l.State())
	requirePortFree(t, addr)
}

func TestListener_MissingCodeStaysListening(t *testing.T) {
	calls := make(chan string, 2)
	l := loopback.New()
	require.NoError(t, l.Start(anyPort, func(ctx context.Context, code, state string) error {
		calls <- code
		return nil
	}))
	defer l.Stop()

	status, _ := get(t, l, "?state=xyz")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, loopback.Listening, l.State())
	require.Empty(t, calls)

	status, _ = get(t, l, "?code=later")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "later", <-calls)
}

func TestListener_UnroutedRequests(t *testing.T) {
	l := loopback.New()
	require.NoError(t, l.Start(anyPort, func(ctx context.Context, code, state string) error { return nil }))
	defer l.Stop()

	resp, err := testClient.Post(fmt.Sprintf("http://%s/?code=x", l.Addr()), "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	status, _ := get(t, l, "favicon.ico")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, loopback.Listening, l.State())
}

func TestListener_HandlerFailure(t *testing.T) {
	l := loopback.New()
	require.NoError(t, l.Start(anyPort, func(ctx context.Context, code, state string) error {
		return errors.New("invalid_grant")
	}))

	status, body := get(t, l, "?code=bad")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, loopback.FailureMessage, body)

	waitStopped(t, l)
	require.Equal(t, loopback.Stopped, l.State())
}

func TestListener_ProviderDenied(t *testing.T) {
	failures := make(chan error, 1)
	l := loopback.New(loopback.WithFailureHandler(func(err error) { failures <- err }))
	require.NoError(t, l.Start(anyPort, func(ctx context.Context, code, state string) error {
		t.Error("code handler must not run")
		return nil
	}))

	status, _ := get(t, l, "?error=access_denied&error_description=user+said+no")
	require.Equal(t, http.StatusBadRequest, status)

	waitStopped(t, l)
	var denied *loopback.DeniedError
	require.ErrorAs(t, <-failures, &denied)
	require.Equal(t, "access_denied", denied.Code)
	require.Equal(t, "user said no", denied.Description)
}

func TestListener_SecondCodeRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var calls int
	var mu sync.Mutex

	l := loopback.New()
	require.NoError(t, l.Start(anyPort, func(ctx context.Context, code, state string) error {
		mu.Lock()
		calls++
		mu.Unlock()
		close(entered)
		<-release
		return nil
	}))

	first := make(chan int, 1)
	go func() {
		resp, err := testClient.Get(fmt.Sprintf("http://%s/?code=first", l.Addr()))
		if !assert.NoError(t, err) {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	<-entered
	status, body := get(t, l, "?code=second")
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Contains(t, body, "already completed")

	close(release)
	require.Equal(t, http.StatusOK, <-first)
	waitStopped(t, l)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}

func TestListener_BindError(t *testing.T) {
	held, err := net.Listen("tcp", anyPort)
	require.NoError(t, err)
	defer held.Close()

	l := loopback.New()
	err = l.Start(held.Addr().String(), func(ctx context.Context, code, state string) error { return nil })

	var bindErr *loopback.BindError
	require.ErrorAs(t, err, &bindErr)
	require.Equal(t, held.Addr().String(), bindErr.Addr)
	require.Equal(t, loopback.Idle, l.State())
	require.NoError(t, l.Stop())
}

func TestListener_StopIdempotent(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		l := loopback.New()
		require.NoError(t, l.Stop())
		require.NoError(t, l.Stop())
		require.Equal(t, loopback.Stopped, l.State())

		err := l.Start(anyPort, func(ctx context.Context, code, state string) error { return nil })
		require.ErrorIs(t, err, loopback.ErrNotIdle)
	})

	t.Run("concurrent while listening", func(t *testing.T) {
		l := loopback.New()
		require.NoError(t, l.Start(anyPort, func(ctx context.Context, code, state string) error { return nil }))
		addr := l.Addr()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, l.Stop())
			}()
		}
		wg.Wait()
		requirePortFree(t, addr)
		require.Equal(t, loopback.Stopped, l.State())
	})

	t.Run("after completion", func(t *testing.T) {
		l := loopback.New()
		require.NoError(t, l.Start(anyPort, func(ctx context.Context, code, state string) error { return nil }))
		status, _ := get(t, l, "?code=abc")
		require.Equal(t, http.StatusOK, status)
		require.NoError(t, l.Stop())
		require.NoError(t, l.Stop())
		waitStopped(t, l)
	})
}

func TestListener_StartTwice(t *testing.T) {
	l := loopback.New()
	require.NoError(t, l.Start(anyPort, func(ctx context.Context, code, state string) error { return nil }))
	defer l.Stop()
	require.ErrorIs(t, l.Start(anyPort, func(ctx context.Context, code, state string) error { return nil }), loopback.ErrNotIdle)
	require.NotZero(t, l.Port())
}

func TestState_String(t *testing.T) {
	require.Equal(t, "listening", loopback.Listening.String())
	require.Equal(t, "stopped", loopback.Stopped.String())
	require.Equal(t, "state(42)", loopback.State(42).String())
}
