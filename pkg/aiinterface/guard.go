package aiinterface

import "fmt"

// GuardAdultMode 成人模式前置检查。
// 提供商不允许成人内容而调用方请求成人模式时返回
// KindAdultModeNotSupported，适配器必须在发起网络调用前执行。
func GuardAdultMode(d ProviderDescriptor, adultMode bool) error {
	if adultMode && !d.Compliance.AllowsAdultContent {
		return NewError(KindAdultModeNotSupported,
			fmt.Sprintf("提供商 %s 不支持成人模式", d.ID))
	}
	return nil
}
