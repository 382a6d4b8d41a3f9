// Package json 统一的 jsoniter 配置，事件广播和配置日志都走这里
package json

import (
	jsoniter "github.com/json-iterator/go"
)

// JSON 与标准库行为兼容的 jsoniter 实例
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

func Marshal(v interface{}) ([]byte, error) {
	return JSON.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return JSON.Unmarshal(data, v)
}

// MarshalToString 避免 []byte 到 string 的拷贝
func MarshalToString(v interface{}) (string, error) {
	return JSON.MarshalToString(v)
}
