package pod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	sdk "github.com/docker/docker/client"
	"github.com/docker/go-connections/sockets"
	"github.com/pkg/errors"

	"podsync/internal/engine"
)

// apiPrefix libpod REST 接口前缀
const apiPrefix = "/v4.0.0/libpod"

// psArgs 进程列表的列，和容器 top 保持一致
const psArgs = "user,pid,ppid,pcpu,etime,tty,time,args"

// Client 通过 Podman 套接字访问 libpod Pod 接口
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
}

// New 使用给定的 HTTP 客户端创建，base 形如 http://d
func New(base string, hc *http.Client, timeout time.Duration) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: base, http: hc, timeout: timeout}
}

// NewFromHost 按 DOCKER_HOST 风格的地址创建，支持 unix:// 和 tcp://
func NewFromHost(host string, timeout time.Duration) (*Client, error) {
	u, err := sdk.ParseHostURL(host)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid podman host %q", host)
	}

	tr := &http.Transport{}
	if err := sockets.ConfigureTransport(tr, u.Scheme, u.Host); err != nil {
		return nil, errors.Wrap(err, "failed to configure podman transport")
	}

	base := "http://d"
	if u.Scheme == "tcp" {
		base = "http://" + u.Host
	}
	return New(base, &http.Client{Transport: tr}, timeout), nil
}

// apiError libpod 的错误响应
type apiError struct {
	Cause    string `json:"cause"`
	Message  string `json:"message"`
	Response int    `json:"response"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Cause
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// do 发送请求，非 2xx 响应转换为 apiError；调用方负责关闭 Body
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	u := c.base + apiPrefix + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := &apiError{Response: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Error() == "" {
			apiErr.Message = fmt.Sprintf("unexpected status %d", resp.StatusCode)
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

type listEntry struct {
	ID string `json:"Id"`
}

type inspectResponse struct {
	ID               string            `json:"Id"`
	Name             string            `json:"Name"`
	State            string            `json:"State"`
	InfraContainerID string            `json:"InfraContainerID"`
	Created          time.Time         `json:"Created"`
	Labels           map[string]string `json:"Labels"`
	Containers       []struct {
		ID    string `json:"Id"`
		Name  string `json:"Name"`
		State string `json:"State"`
	} `json:"Containers"`
}

// Member 容器与 Pod 的关系
type Member struct {
	PodID   string
	IsInfra bool
}

// Members 通过 libpod 容器列表获取每个容器所属的 Pod 和 infra 标记
// 不属于任何 Pod 的容器 PodID 为空
func (c *Client) Members(ctx context.Context) (map[string]Member, error) {
	var entries []struct {
		ID      string `json:"Id"`
		Pod     string `json:"Pod"`
		IsInfra bool   `json:"IsInfra"`
	}
	query := url.Values{}
	query.Set("all", "true")
	if err := c.getJSON(ctx, "/containers/json", query, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to get pod members")
	}

	out := make(map[string]Member, len(entries))
	for _, e := range entries {
		out[e.ID] = Member{PodID: e.Pod, IsInfra: e.IsInfra}
	}
	return out, nil
}

// List 获取 Pod ID 列表
func (c *Client) List(ctx context.Context) ([]string, error) {
	var entries []listEntry
	if err := c.getJSON(ctx, "/pods/json", nil, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to get pod list")
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// Inspect 获取 Pod 详情
func (c *Client) Inspect(ctx context.Context, id string) (engine.PodData, error) {
	var resp inspectResponse
	if err := c.getJSON(ctx, "/pods/"+url.PathEscape(id)+"/json", nil, &resp); err != nil {
		return engine.PodData{}, errors.Wrap(err, "failed to get pod details")
	}

	data := engine.PodData{
		ID:      resp.ID,
		Name:    resp.Name,
		Status:  resp.State,
		InfraID: resp.InfraContainerID,
		Created: resp.Created,
		Labels:  resp.Labels,
	}
	for _, ctr := range resp.Containers {
		data.Containers = append(data.Containers, engine.PodContainer{ID: ctr.ID, Name: ctr.Name, Status: ctr.State})
	}
	return data, nil
}

// Create 创建 Pod，返回 Pod ID
func (c *Client) Create(ctx context.Context, opts engine.PodCreateOptions) (string, error) {
	spec := map[string]any{
		"name":     opts.Name,
		"no_infra": opts.NoInfra,
	}
	if opts.Hostname != "" {
		spec["hostname"] = opts.Hostname
	}
	if len(opts.Labels) > 0 {
		spec["labels"] = opts.Labels
	}
	if opts.InfraImage != "" && !opts.NoInfra {
		spec["infra_image"] = opts.InfraImage
	}

	resp, err := c.do(ctx, http.MethodPost, "/pods/create", nil, spec)
	if err != nil {
		return "", errors.Wrap(err, "failed to create pod")
	}
	defer resp.Body.Close()

	var created listEntry
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", errors.Wrap(err, "failed to decode pod create response")
	}
	return created.ID, nil
}

// Remove 删除 Pod
func (c *Client) Remove(ctx context.Context, id string, force bool) error {
	query := url.Values{}
	if force {
		query.Set("force", "true")
	}
	resp, err := c.do(ctx, http.MethodDelete, "/pods/"+url.PathEscape(id), query, nil)
	if err != nil {
		return errors.Wrap(err, "failed to remove pod")
	}
	resp.Body.Close()
	return nil
}

// Prune 清理已停止的 Pod
func (c *Client) Prune(ctx context.Context) (engine.PruneReport, error) {
	resp, err := c.do(ctx, http.MethodPost, "/pods/prune", nil, nil)
	if err != nil {
		return engine.PruneReport{}, errors.Wrap(err, "failed to prune pods")
	}
	defer resp.Body.Close()

	var reports []struct {
		ID  string `json:"Id"`
		Err any    `json:"Err"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reports); err != nil {
		return engine.PruneReport{}, errors.Wrap(err, "failed to decode pod prune response")
	}

	var out engine.PruneReport
	for _, r := range reports {
		if r.Err == nil {
			out.Deleted = append(out.Deleted, r.ID)
		}
	}
	return out, nil
}

// Top 以流的方式获取 Pod 内所有进程，delay 向上取整到秒
func (c *Client) Top(ctx context.Context, id string, delay time.Duration) (<-chan engine.TopSnapshot, error) {
	seconds := int((delay + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	query := url.Values{}
	query.Set("stream", "true")
	query.Set("delay", strconv.Itoa(seconds))
	query.Set("ps_args", psArgs)

	resp, err := c.do(ctx, http.MethodGet, "/pods/"+url.PathEscape(id)+"/top", query, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pod processes")
	}

	out := make(chan engine.TopSnapshot, 1)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		dec := json.NewDecoder(resp.Body)
		for {
			var body struct {
				Processes [][]string `json:"Processes"`
			}
			snap := engine.TopSnapshot{}
			if err := dec.Decode(&body); err != nil {
				if err == io.EOF || ctx.Err() != nil {
					return
				}
				snap.Err = errors.Wrap(err, "failed to decode pod processes")
			} else {
				snap.Processes = body.Processes
			}

			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
			if snap.Err != nil {
				return
			}
		}
	}()
	return out, nil
}
