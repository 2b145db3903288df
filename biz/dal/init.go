package dal

import (
	"github.com/ken196502/strategy-simulator/biz/dal/kafka"
	"github.com/ken196502/strategy-simulator/biz/dal/pg"
	"github.com/ken196502/strategy-simulator/biz/dal/redis"
)

func Init() {
	pg.Init()
	redis.Init()
	kafka.Init()
}
