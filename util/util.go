package util

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sony/sonyflake"
)

var (
	sonyFlake *sonyflake.Sonyflake
	once      sync.Once
)

// InitSonyFlake 初始化 Snowflake 实例
// 默认按私有网卡地址取机器号，容器里常没有私有地址，此时退回用 PID 派生
func InitSonyFlake() {
	once.Do(func() {
		sonyFlake = sonyflake.NewSonyflake(sonyflake.Settings{})
		if sonyFlake == nil {
			sonyFlake = sonyflake.NewSonyflake(sonyflake.Settings{
				MachineID: func() (uint16, error) {
					return uint16(os.Getpid()), nil
				},
			})
		}
	})
}

// GenerateOrderNo 生成 16 位十六进制的唯一订单号
func GenerateOrderNo() (string, error) {
	if sonyFlake == nil {
		InitSonyFlake()
	}
	if sonyFlake == nil {
		return "", errors.New("sonyflake init failed")
	}
	id, err := sonyFlake.NextID()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", id), nil
}
