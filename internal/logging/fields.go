package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FetchFields 提供拦截请求的公共字段，供 fetch 日志复用。
func FetchFields(requestID, method, url, generation string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"action":     "fetch",
		"request_id": requestID,
		"method":     method,
		"url":        url,
		"generation": generation,
		"cache_hit":  cacheHit,
	}
}

// LifecycleFields 描述 install/activate/sync/push 等生命周期事件。
func LifecycleFields(event, generation string) logrus.Fields {
	return logrus.Fields{
		"action":     event,
		"generation": generation,
	}
}
