// Package platform classifies URLs into platform tags that drive strategy
// ordering, authentication requirements, and image-download headers.
package platform

import (
	"net/url"
	"strings"
)

// Platform describes one content source and the hints downstream
// subsystems need to fetch from it.
type Platform struct {
	// Name is the stable tag persisted in records and documents.
	Name string
	// RequiresLogin promotes the authenticated browser strategy to the
	// front of the cascade.
	RequiresLogin bool
	// Referer is sent when downloading images from the platform; several
	// platforms reject hot-linked requests without it.
	Referer string
	// UserAgent overrides the default UA for headless navigation. Empty
	// means use the configured default.
	UserAgent string
}

// Web is the fallback platform for unmatched URLs.
var Web = Platform{Name: "web"}

const wechatUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 MicroMessenger/8.0.38(0x18002629) NetType/WIFI Language/zh_CN"

// rule maps a host suffix to a platform. Rules are evaluated in order and
// the first match wins, so more specific hosts must come first.
type rule struct {
	hostSuffix string
	platform   Platform
}

// rules is built once at init and never mutated afterwards.
var rules = []rule{
	{"mp.weixin.qq.com", Platform{Name: "wechat", Referer: "https://mp.weixin.qq.com/", UserAgent: wechatUA}},
	{"weixin.qq.com", Platform{Name: "wechat", Referer: "https://mp.weixin.qq.com/", UserAgent: wechatUA}},
	{"xiaohongshu.com", Platform{Name: "xiaohongshu", Referer: "https://www.xiaohongshu.com/"}},
	{"xhslink.com", Platform{Name: "xiaohongshu", Referer: "https://www.xiaohongshu.com/"}},
	{"zhihu.com", Platform{Name: "zhihu", Referer: "https://www.zhihu.com/"}},
	{"douyin.com", Platform{Name: "douyin", Referer: "https://www.douyin.com/"}},
	{"bilibili.com", Platform{Name: "bilibili", Referer: "https://www.bilibili.com/"}},
	{"taobao.com", Platform{Name: "taobao", RequiresLogin: true, Referer: "https://www.taobao.com/"}},
	{"jd.com", Platform{Name: "jd", RequiresLogin: true, Referer: "https://www.jd.com/"}},
	{"jd.hk", Platform{Name: "jd", RequiresLogin: true, Referer: "https://www.jd.com/"}},
	{"weibo.com", Platform{Name: "weibo", Referer: "https://weibo.com/"}},
	{"weibo.cn", Platform{Name: "weibo", Referer: "https://weibo.com/"}},
	{"toutiao.com", Platform{Name: "toutiao", Referer: "https://www.toutiao.com/"}},
	{"feishu.cn", Platform{Name: "feishu", Referer: "https://www.feishu.cn/"}},
	{"twitter.com", Platform{Name: "twitter", Referer: "https://twitter.com/"}},
	{"x.com", Platform{Name: "twitter", Referer: "https://twitter.com/"}},
}

// Classify maps a URL to its platform. It is total and deterministic:
// unmatched or unparseable URLs yield the generic web platform.
func Classify(rawURL string) Platform {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Web
	}
	host := strings.ToLower(u.Hostname())
	for _, r := range rules {
		if host == r.hostSuffix || strings.HasSuffix(host, "."+r.hostSuffix) {
			return r.platform
		}
	}
	return Web
}
