package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 app/缓存代/分类字段，供拦截请求日志复用。
func RequestFields(app, generation, class, key string) logrus.Fields {
	return logrus.Fields{
		"app":        app,
		"generation": generation,
		"class":      class,
		"key":        key,
	}
}

// GenerationFields 提供缓存代生命周期日志的公共字段。
func GenerationFields(action, app, generation string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"app":        app,
		"generation": generation,
	}
}
