package controller

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/any-hub/assetcache/internal/cache"
)

// RequestKey 返回缓存键：去掉 fragment 的绝对 URL。
func RequestKey(req *http.Request) string {
	u := *req.URL
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// duplicate 在任何消费者读取之前把正文读入内存，返回交给调用方的响应与待写入的条目。
// 超过 MaxEntrySize 的正文不缓存：已读部分与剩余流拼接后原样交给调用方，entry 为 nil。
func (c *Controller) duplicate(resp *http.Response, key string) (*http.Response, *cache.Entry, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxEntrySize+1))
	if err != nil {
		resp.Body.Close()
		return nil, nil, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	if int64(len(body)) > c.maxEntrySize {
		resp.Body = &prefixedBody{Reader: io.MultiReader(bytes.NewReader(body), resp.Body), Closer: resp.Body}
		resp.ContentLength = -1
		return resp, nil, nil
	}
	resp.Body.Close()

	entry := &cache.Entry{
		Key:      key,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: c.now().UTC(),
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, entry, nil
}

// entryResponse 由缓存条目构造一个全新的响应，每次调用都拥有独立的 Body。
func entryResponse(entry *cache.Entry, req *http.Request) *http.Response {
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := entry.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}

type prefixedBody struct {
	io.Reader
	io.Closer
}
