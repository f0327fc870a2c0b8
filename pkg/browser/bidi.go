package browser

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sys/unix"
)

const (
	defaultStartTimeout = 30 * time.Second
	closeGrace          = 5 * time.Second
)

var bidiListening = regexp.MustCompile(`WebDriver BiDi listening on (ws://\S+)`)

// firefoxPrefs keeps a fresh profile quiet and makes BiDi the only remote protocol.
const firefoxPrefs = `user_pref("remote.active-protocols", 1);
user_pref("browser.shell.checkDefaultBrowser", false);
user_pref("browser.startup.homepage_override.mstone", "ignore");
user_pref("browser.tabs.warnOnClose", false);
user_pref("datareporting.policy.dataSubmissionEnabled", false);
user_pref("toolkit.telemetry.reportingpolicy.firstRun", false);
`

// BiDiDriver drives Firefox over WebDriver BiDi.
type BiDiDriver struct {
	logger       logrus.FieldLogger
	startTimeout time.Duration
}

// NewBiDiDriver returns a Firefox driver.
func NewBiDiDriver(logger logrus.FieldLogger) *BiDiDriver {
	return &BiDiDriver{logger: logger.WithField("driver", "bidi"), startTimeout: defaultStartTimeout}
}

// LaunchServer starts Firefox on a throwaway profile in its own process group
// and waits for the BiDi endpoint to be announced on stderr.
func (d *BiDiDriver) LaunchServer(ctx context.Context, opts LaunchOptions) (Server, error) {
	bin := opts.Binary
	if bin == "" {
		found, err := exec.LookPath("firefox")
		if err != nil {
			return nil, fmt.Errorf("firefox executable not found: %w", err)
		}
		bin = found
	}

	profile, err := os.MkdirTemp("", "tabmem-firefox-")
	if err != nil {
		return nil, fmt.Errorf("creating profile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(profile, "user.js"), []byte(firefoxPrefs), 0o600); err != nil {
		os.RemoveAll(profile)
		return nil, fmt.Errorf("writing profile prefs: %w", err)
	}

	args := []string{"--remote-debugging-port=0", "--profile", profile, "--no-remote", "--new-instance"}
	if !opts.Headed {
		args = append(args, "--headless")
	}
	// The browser gets its own process group, so a terminal's SIGINT never
	// reaches it; a cancelled ctx kills the whole group instead.
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return unix.Kill(-cmd.Process.Pid, unix.SIGKILL) }
	stderr, err := cmd.StderrPipe()
	if err != nil {
		os.RemoveAll(profile)
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		os.RemoveAll(profile)
		return nil, err
	}

	srv := &firefoxServer{cmd: cmd, profile: profile, exited: make(chan struct{})}
	go func() {
		srv.waitErr = cmd.Wait()
		close(srv.exited)
	}()
	opts.started(srv)

	startCtx, cancel := context.WithTimeout(ctx, d.startTimeout)
	defer cancel()
	endpoint, err := waitForEndpoint(startCtx, stderr)
	if err != nil {
		_ = srv.Close()
		return nil, err
	}
	srv.endpoint = endpoint
	d.logger.WithFields(logrus.Fields{"pid": srv.PID(), "url": endpoint}).Debug("launched firefox")
	return srv, nil
}

// waitForEndpoint scans r for the BiDi announcement and keeps draining it
// afterwards so the browser never blocks on a full pipe.
func waitForEndpoint(ctx context.Context, r io.Reader) (string, error) {
	found := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		sent := false
		for scanner.Scan() {
			if sent {
				continue
			}
			if m := bidiListening.FindStringSubmatch(scanner.Text()); m != nil {
				found <- m[1]
				sent = true
			}
		}
		if !sent {
			close(found)
		}
	}()

	select {
	case endpoint, ok := <-found:
		if !ok {
			return "", errors.New("browser exited before announcing its BiDi endpoint")
		}
		return endpoint, nil
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for BiDi endpoint: %w", ctx.Err())
	}
}

// Connect opens a BiDi session on the server.
func (d *BiDiDriver) Connect(ctx context.Context, srv Server) (Browser, error) {
	conn, err := dialBiDi(ctx, srv.Endpoint()+"/session")
	if err != nil {
		return nil, err
	}
	if _, err := conn.call(ctx, "session.new", map[string]any{"capabilities": map[string]any{}}); err != nil {
		conn.close()
		return nil, fmt.Errorf("session.new: %w", err)
	}
	return &bidiBrowser{conn: conn}, nil
}

type firefoxServer struct {
	cmd      *exec.Cmd
	profile  string
	endpoint string

	exited  chan struct{}
	waitErr error
	once    sync.Once
}

func (s *firefoxServer) PID() int         { return s.cmd.Process.Pid }
func (s *firefoxServer) Endpoint() string { return s.endpoint }

// Close terminates the process group, escalating to SIGKILL after a grace
// period, and removes the profile.
func (s *firefoxServer) Close() error {
	var err error
	s.once.Do(func() {
		pgid := s.cmd.Process.Pid
		if kerr := unix.Kill(-pgid, unix.SIGTERM); kerr != nil && !errors.Is(kerr, unix.ESRCH) {
			err = fmt.Errorf("terminating firefox: %w", kerr)
		}
		select {
		case <-s.exited:
		case <-time.After(closeGrace):
			if kerr := unix.Kill(-pgid, unix.SIGKILL); kerr != nil && !errors.Is(kerr, unix.ESRCH) {
				err = errors.Join(err, fmt.Errorf("killing firefox: %w", kerr))
			}
			<-s.exited
		}
		err = errors.Join(err, os.RemoveAll(s.profile))
	})
	return err
}

type bidiBrowser struct {
	conn *bidiConn
}

func (b *bidiBrowser) NewContext(ctx context.Context) (Context, error) {
	res, err := b.conn.call(ctx, "browser.createUserContext", map[string]any{})
	if err != nil {
		return nil, err
	}
	userContext := res.Get("userContext").String()
	if userContext == "" {
		return nil, errors.New("browser.createUserContext returned no user context")
	}
	return &bidiContext{conn: b.conn, userContext: userContext}, nil
}

// Close asks the browser to shut down and drops the connection. The reply to
// browser.close may never arrive because the socket goes away with the browser.
func (b *bidiBrowser) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	_, _ = b.conn.call(ctx, "browser.close", map[string]any{})
	return b.conn.close()
}

type bidiContext struct {
	conn        *bidiConn
	userContext string
}

func (c *bidiContext) OpenPage(ctx context.Context, url string) error {
	res, err := c.conn.call(ctx, "browsingContext.create", map[string]any{
		"type":        "tab",
		"userContext": c.userContext,
	})
	if err != nil {
		return fmt.Errorf("create tab: %w", err)
	}
	tab := res.Get("context").String()
	if _, err := c.conn.call(ctx, "browsingContext.navigate", map[string]any{
		"context": tab,
		"url":     url,
		"wait":    "complete",
	}); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

// bidiError is an error reply from the remote end.
type bidiError struct {
	Code    string
	Message string
}

func (e *bidiError) Error() string { return e.Code + ": " + e.Message }

type bidiReply struct {
	result gjson.Result
	err    error
}

type bidiCommand struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

// bidiConn multiplexes commands over one websocket; replies are matched by id
// and events are dropped.
type bidiConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan bidiReply

	done    chan struct{}
	readErr error
}

func dialBiDi(ctx context.Context, url string) (*bidiConn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &bidiConn{ws: ws, pending: make(map[int64]chan bidiReply), done: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

func (c *bidiConn) call(ctx context.Context, method string, params any) (gjson.Result, error) {
	ch := make(chan bidiReply, 1)
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg, err := json.Marshal(bidiCommand{ID: id, Method: method, Params: params})
	if err != nil {
		return gjson.Result{}, err
	}
	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, msg)
	c.writeMu.Unlock()
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", method, err)
	}

	select {
	case reply := <-ch:
		return reply.result, reply.err
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	case <-c.done:
		return gjson.Result{}, fmt.Errorf("%s: connection closed: %w", method, c.readErr)
	}
}

func (c *bidiConn) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		msg := gjson.ParseBytes(data)
		id := msg.Get("id")
		if !id.Exists() {
			continue
		}
		var reply bidiReply
		if msg.Get("type").String() == "error" {
			reply.err = &bidiError{Code: msg.Get("error").String(), Message: msg.Get("message").String()}
		} else {
			reply.result = msg.Get("result")
		}
		c.mu.Lock()
		ch, ok := c.pending[id.Int()]
		c.mu.Unlock()
		if ok {
			ch <- reply
		}
	}
}

func (c *bidiConn) close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.ws.Close()
	<-c.done
	return err
}
