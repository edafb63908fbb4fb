package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
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
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Enqueue queues a task and returns the queued ids.
func (c *Client) Enqueue(req EnqueueRequest) (*EnqueueResponse, error) {
	return call[EnqueueResponse](c, "Enqueue", req)
}

// PollNow queues an immediate poll pass.
func (c *Client) PollNow() (*PollNowResponse, error) {
	return call[PollNowResponse](c, "PollNow", PollNowRequest{})
}

// Automations lists admitted automations.
func (c *Client) Automations() (*AutomationsResponse, error) {
	return call[AutomationsResponse](c, "Automations", AutomationsRequest{})
}

// SetAutomation enables or disables an automation.
func (c *Client) SetAutomation(name string, enabled bool) (*SetAutomationResponse, error) {
	return call[SetAutomationResponse](c, "SetAutomation", SetAutomationRequest{Name: name, Enabled: enabled})
}

// Tasks lists recent task history.
func (c *Client) Tasks(limit int) (*TasksResponse, error) {
	return call[TasksResponse](c, "Tasks", TasksRequest{Limit: limit})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}
