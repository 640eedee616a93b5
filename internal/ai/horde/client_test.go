package horde

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend/pkg/aiinterface"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(&aiinterface.ClientConfig{
		ProviderID: "horde-test",
		BaseURL:    serverURL,
	})
	require.NoError(t, err)
	// 测试中缩短轮询参数
	client.pollAttempts = 5
	client.pollDelay = 5 * time.Millisecond
	return client
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(&aiinterface.ClientConfig{ProviderID: "horde"})
	require.NoError(t, err)

	d := client.Descriptor()
	assert.Equal(t, aiinterface.ClassAdultFriendly, d.Class)
	assert.True(t, d.Compliance.AllowsAdultContent)
	assert.True(t, d.Compliance.RequiresExplicitConsent)
	// 未配置 Key 时使用匿名 Key
	assert.Equal(t, "0000000000", client.apiKey)
}

func TestGenerate_AsyncJob(t *testing.T) {
	var polls int32
	var captured submitRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/generate/text/async":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
			json.NewEncoder(w).Encode(submitResponse{ID: "job-1"})
		case "/v2/generate/text/status/job-1":
			// 前两次未完成，第三次返回结果
			if atomic.AddInt32(&polls, 1) < 3 {
				json.NewEncoder(w).Encode(statusResponse{Done: false})
				return
			}
			json.NewEncoder(w).Encode(statusResponse{
				Done: true,
				Generations: []struct {
					Text  string `json:"text"`
					Model string `json:"model"`
				}{{Text: "社区生成结果", Model: "koboldcpp/test"}},
			})
		default:
			t.Fatalf("未预期的请求路径: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.Generate(context.Background(), &aiinterface.GenerateRequest{
		Messages: []aiinterface.Message{
			{Role: "system", Content: "你是讲故事的人"},
			{Role: "user", Content: "讲个故事"},
		},
	}, true)
	require.NoError(t, err)

	assert.Equal(t, "社区生成结果", resp.Content)
	assert.Equal(t, "koboldcpp/test", resp.Model)
	// Horde 不报告用量，始终估算
	assert.True(t, resp.Usage.Estimated)
	// 成人模式透传为 NSFW 标志
	assert.True(t, captured.NSFW)
	assert.Contains(t, captured.Prompt, "讲个故事")
	assert.EqualValues(t, 3, atomic.LoadInt32(&polls))
}

func TestGenerate_PollTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/generate/text/async":
			json.NewEncoder(w).Encode(submitResponse{ID: "job-slow"})
		default:
			json.NewEncoder(w).Encode(statusResponse{Done: false})
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Generate(context.Background(), &aiinterface.GenerateRequest{
		Messages: []aiinterface.Message{{Role: "user", Content: "你好"}},
	}, false)
	require.Error(t, err)
	// 轮询有界：超过次数上限后报超时而不是永远等待
	assert.Equal(t, aiinterface.KindTimeout, aiinterface.KindOf(err))
}

func TestGenerate_FaultedJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/generate/text/async":
			json.NewEncoder(w).Encode(submitResponse{ID: "job-bad"})
		default:
			json.NewEncoder(w).Encode(statusResponse{Faulted: true})
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Generate(context.Background(), &aiinterface.GenerateRequest{
		Messages: []aiinterface.Message{{Role: "user", Content: "你好"}},
	}, false)
	require.Error(t, err)
	assert.Equal(t, aiinterface.KindAPIError, aiinterface.KindOf(err))
}

func TestGenerate_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/generate/text/async":
			json.NewEncoder(w).Encode(submitResponse{ID: "job-x"})
		default:
			json.NewEncoder(w).Encode(statusResponse{Done: false})
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Generate(ctx, &aiinterface.GenerateRequest{
		Messages: []aiinterface.Message{{Role: "user", Content: "你好"}},
	}, false)
	require.Error(t, err)
	assert.Equal(t, aiinterface.KindTimeout, aiinterface.KindOf(err))
}

func TestFlattenMessages(t *testing.T) {
	prompt := flattenMessages([]aiinterface.Message{
		{Role: "system", Content: "设定"},
		{Role: "user", Content: "问题"},
		{Role: "assistant", Content: "上一轮回答"},
	})
	assert.Contains(t, prompt, "设定")
	assert.Contains(t, prompt, "User: 问题")
	assert.Contains(t, prompt, "Assistant: 上一轮回答")
	// prompt 以待续写的 Assistant: 结尾
	assert.Regexp(t, `Assistant:$`, prompt)
}

func TestCheckHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/status/heartbeat", r.URL.Path)
		w.Write([]byte(`{"message":"OK"}`))
	}))
	defer server.Close()

	status := newTestClient(t, server.URL).CheckHealth(context.Background())
	assert.True(t, status.Healthy)
}
