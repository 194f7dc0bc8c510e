package model

import (
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
)

// Protocol 是远程打分服务的请求/响应格式。
type Protocol string

const (
	// ProtocolSimple: POST {endpoint} {"user_id":7,"item_ids":[30,50]} → {"scores":[0.9,0.6]}
	ProtocolSimple Protocol = "simple"

	// ProtocolTFServing: TensorFlow Serving REST predict API，
	// 每个候选一个 instance，预测值可以是标量或单元素数组。
	ProtocolTFServing Protocol = "tfserving"
)

// ParseProtocol 解析协议名，空字符串返回 ProtocolSimple。
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(s)) {
	case "", ProtocolSimple:
		return ProtocolSimple, nil
	case ProtocolTFServing:
		return ProtocolTFServing, nil
	}
	return "", fmt.Errorf("unknown rpc protocol %q", s)
}

// TFServingOptions 描述 TF Serving 上的模型签名。
type TFServingOptions struct {
	Model     string // 默认使用 RPCOptions.Name
	Version   string
	Signature string // 默认 serving_default

	// 模型输入名，默认 user_id / item_id
	UserInput string
	ItemInput string
}

type codec interface {
	url(endpoint string) string
	encode(userID int64, itemIDs []int64) ([]byte, error)
	decode(r io.Reader, n int) ([]float64, error)
}

func newCodec(opts RPCOptions) codec {
	if opts.Protocol != ProtocolTFServing {
		return simpleCodec{}
	}
	tf := opts.TFServing
	if tf.Model == "" {
		tf.Model = opts.Name
	}
	if tf.Signature == "" {
		tf.Signature = "serving_default"
	}
	if tf.UserInput == "" {
		tf.UserInput = "user_id"
	}
	if tf.ItemInput == "" {
		tf.ItemInput = "item_id"
	}
	return tfServingCodec{opts: tf}
}

type simpleCodec struct{}

func (simpleCodec) url(endpoint string) string { return endpoint }

func (simpleCodec) encode(userID int64, itemIDs []int64) ([]byte, error) {
	return json.Marshal(rpcRequest{UserID: userID, ItemIDs: itemIDs})
}

func (simpleCodec) decode(r io.Reader, n int) ([]float64, error) {
	var result rpcResponse
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Scores) != n {
		return nil, fmt.Errorf("response scores count mismatch: expected %d, got %d", n, len(result.Scores))
	}
	return result.Scores, nil
}

type tfServingCodec struct {
	opts TFServingOptions
}

func (c tfServingCodec) url(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if c.opts.Version != "" {
		return fmt.Sprintf("%s/v1/models/%s/versions/%s:predict", endpoint, c.opts.Model, c.opts.Version)
	}
	return fmt.Sprintf("%s/v1/models/%s:predict", endpoint, c.opts.Model)
}

func (c tfServingCodec) encode(userID int64, itemIDs []int64) ([]byte, error) {
	instances := make([]map[string]int64, len(itemIDs))
	for i, id := range itemIDs {
		instances[i] = map[string]int64{c.opts.UserInput: userID, c.opts.ItemInput: id}
	}
	return json.Marshal(map[string]any{
		"signature_name": c.opts.Signature,
		"instances":      instances,
	})
}

func (c tfServingCodec) decode(r io.Reader, n int) ([]float64, error) {
	var result struct {
		Predictions []json.RawMessage `json:"predictions"`
	}
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode tf serving response: %w", err)
	}
	if len(result.Predictions) != n {
		return nil, fmt.Errorf("tf serving predictions count mismatch: expected %d, got %d", n, len(result.Predictions))
	}

	scores := make([]float64, n)
	for i, raw := range result.Predictions {
		if err := json.Unmarshal(raw, &scores[i]); err == nil {
			continue
		}
		var vec []float64
		if err := json.Unmarshal(raw, &vec); err != nil || len(vec) != 1 {
			return nil, fmt.Errorf("prediction %d: want a scalar or one-element array, got %s", i, raw)
		}
		scores[i] = vec[0]
	}
	return scores, nil
}
