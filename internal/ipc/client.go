package ipc

import (
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"vrdl/internal/api"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		err := c.conn.Close()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}

// call invokes method and restores classified errors from the server's
// error text.
func (c *Client) call(method string, req, resp any) error {
	err := c.client.Call(ServiceName+"."+method, req, resp)
	var serverErr rpc.ServerError
	if errors.As(err, &serverErr) {
		return api.RestoreError(string(serverErr))
	}
	return err
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns queue items optionally filtered by statuses.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.call("QueueList", QueueListRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueAdd enqueues a release. Added is false when the release is already
// queued.
func (c *Client) QueueAdd(req QueueAddRequest) (*QueueAddResponse, error) {
	var resp QueueAddResponse
	if err := c.call("QueueAdd", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRemove drops a release from the queue.
func (c *Client) QueueRemove(release string) error {
	return c.ack("QueueRemove", ReleaseRequest{ReleaseName: release})
}

// QueueCancel cancels the active download or extraction of release.
func (c *Client) QueueCancel(release string) error {
	return c.ack("QueueCancel", ReleaseRequest{ReleaseName: release})
}

// QueueRetry re-queues a failed or cancelled release.
func (c *Client) QueueRetry(release string) error {
	return c.ack("QueueRetry", ReleaseRequest{ReleaseName: release})
}

// QueueDeleteFiles removes a release's downloaded files and queue entry.
func (c *Client) QueueDeleteFiles(release string) error {
	return c.ack("QueueDeleteFiles", ReleaseRequest{ReleaseName: release})
}

// QueueInstall installs a completed release on deviceID, or on the
// configured default device when deviceID is empty.
func (c *Client) QueueInstall(release, deviceID string) error {
	return c.ack("QueueInstall", QueueInstallRequest{ReleaseName: release, DeviceID: deviceID})
}

func (c *Client) ack(method string, req any) error {
	var resp AckResponse
	return c.call(method, req, &resp)
}

// History returns journal entries, newest first.
func (c *Client) History(req HistoryRequest) (*HistoryResponse, error) {
	var resp HistoryResponse
	if err := c.call("History", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CatalogSearch searches the daemon's game list.
func (c *Client) CatalogSearch(term string) (*CatalogSearchResponse, error) {
	var resp CatalogSearchResponse
	if err := c.call("CatalogSearch", CatalogSearchRequest{Term: term}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail reads the daemon's current run log.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
