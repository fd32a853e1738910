package image

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/pkg/jsonmessage"
	units "github.com/docker/go-units"
	"github.com/pkg/errors"

	"podsync/internal/engine"
)

// decodeMessages 逐条解析 Docker 的 JSON 消息流，fn 返回错误时停止
func decodeMessages(ctx context.Context, r io.Reader, fn func(jsonmessage.JSONMessage) error) error {
	dec := json.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "failed to decode progress stream")
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
}

// messageError 消息中携带的错误
func messageError(msg jsonmessage.JSONMessage) error {
	if msg.Error != nil {
		return msg.Error
	}
	if msg.ErrorMessage != "" {
		return errors.New(msg.ErrorMessage)
	}
	return nil
}

// formatMessage 把一条进度消息格式化为一行文本，和 docker pull 的非终端输出一致
func formatMessage(msg jsonmessage.JSONMessage) string {
	if msg.Stream != "" {
		return msg.Stream
	}
	if msg.Status == "" {
		return ""
	}

	var b strings.Builder
	if msg.ID != "" {
		b.WriteString(msg.ID)
		b.WriteString(": ")
	}
	b.WriteString(msg.Status)
	if p := msg.Progress; p != nil && p.Total > 0 {
		fmt.Fprintf(&b, " %s/%s", units.HumanSize(float64(p.Current)), units.HumanSize(float64(p.Total)))
	}
	b.WriteString("\n")
	return b.String()
}

// pullReports 把拉取进度流转换为 PullReport，流结束后用 resolve 查到镜像 ID 作为最终报告
func pullReports(ctx context.Context, r io.Reader, quiet bool, out chan<- engine.PullReport, resolve func(context.Context) (string, error)) {
	send := func(rep engine.PullReport) bool {
		select {
		case out <- rep:
			return true
		case <-ctx.Done():
			return false
		}
	}

	err := decodeMessages(ctx, r, func(msg jsonmessage.JSONMessage) error {
		if err := messageError(msg); err != nil {
			return err
		}
		if quiet {
			return nil
		}
		if line := formatMessage(msg); line != "" && !send(engine.PullReport{Stream: line}) {
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			send(engine.PullReport{Err: err})
		}
		return
	}

	id, err := resolve(ctx)
	if err != nil {
		send(engine.PullReport{Err: errors.Wrap(err, "failed to inspect pulled image")})
		return
	}
	send(engine.PullReport{ID: id})
}

// buildChunks 把构建输出流转换为 BuildChunk；镜像 ID 来自 aux 消息，作为最后一段输出发送
func buildChunks(ctx context.Context, r io.Reader, out chan<- engine.BuildChunk) {
	send := func(c engine.BuildChunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var id string
	err := decodeMessages(ctx, r, func(msg jsonmessage.JSONMessage) error {
		if err := messageError(msg); err != nil {
			return err
		}
		if msg.Aux != nil {
			var aux struct {
				ID string `json:"ID"`
			}
			if err := json.Unmarshal(*msg.Aux, &aux); err == nil && aux.ID != "" {
				id = aux.ID
			}
			return nil
		}
		if line := formatMessage(msg); line != "" && !send(engine.BuildChunk{Stream: line}) {
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			send(engine.BuildChunk{Err: err})
		}
		return
	}
	if id != "" {
		send(engine.BuildChunk{Stream: id + "\n"})
	}
}

// pushReports 把推送进度流转换为 PushReport
func pushReports(ctx context.Context, r io.Reader, out chan<- engine.PushReport) {
	err := decodeMessages(ctx, r, func(msg jsonmessage.JSONMessage) error {
		if err := messageError(msg); err != nil {
			return err
		}
		line := formatMessage(msg)
		if line == "" {
			return nil
		}
		select {
		case out <- engine.PushReport{Stream: line}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil && ctx.Err() == nil {
		select {
		case out <- engine.PushReport{Err: err}:
		case <-ctx.Done():
		}
	}
}
