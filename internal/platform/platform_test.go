package platform

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url           string
		want          string
		requiresLogin bool
	}{
		{"https://mp.weixin.qq.com/s/abc123", "wechat", false},
		{"https://www.xiaohongshu.com/explore/x", "xiaohongshu", false},
		{"https://xhslink.com/abc", "xiaohongshu", false},
		{"https://zhuanlan.zhihu.com/p/12345", "zhihu", false},
		{"https://www.bilibili.com/video/BV1", "bilibili", false},
		{"https://item.taobao.com/item.htm?id=1", "taobao", true},
		{"https://item.jd.com/100.html", "jd", true},
		{"https://weibo.com/123/abc", "weibo", false},
		{"https://x.com/someone/status/1", "twitter", false},
		{"https://twitter.com/someone/status/1", "twitter", false},
		{"https://example.com/article", "web", false},
		{"https://notjd.com/x", "web", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			got := Classify(tt.url)
			require.Equal(t, tt.want, got.Name)
			require.Equal(t, tt.requiresLogin, got.RequiresLogin)
		})
	}
}

func TestClassifyIsTotalAndPure(t *testing.T) {
	t.Parallel()

	// Unparseable input still yields a tag.
	require.Equal(t, "web", Classify("::not-a-url::").Name)

	// Repeated calls agree.
	for i := 0; i < 3; i++ {
		require.Equal(t, Classify("https://mp.weixin.qq.com/s/a"), Classify("https://mp.weixin.qq.com/s/a"))
	}
}

func TestClassifyLoginPlatformsCarryReferer(t *testing.T) {
	t.Parallel()

	p := Classify("https://item.taobao.com/item.htm?id=7")
	require.True(t, p.RequiresLogin)
	require.NotEmpty(t, p.Referer)
}
