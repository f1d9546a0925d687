package verdict

import (
	"math"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/domain"
)

// Aggregate 各维度等权平均，保留 precision 位小数，四舍五入（.5 远离零）
// 只用整数运算，结果与维度顺序无关
func Aggregate(scores domain.ScoreSet, precision int) (float64, error) {
	n := int64(len(scores))
	if n == 0 {
		return 0, common.ErrNoScoresToAggregate
	}
	if precision < 0 {
		precision = 0
	}

	var sum int64
	for _, e := range scores {
		sum += int64(e.Score)
	}

	k := int64(math.Pow10(precision))
	num := 2 * sum * k
	var q int64
	if num >= 0 {
		q = (num + n) / (2 * n)
	} else {
		q = -((-num + n) / (2 * n))
	}
	return float64(q) / float64(k), nil
}
