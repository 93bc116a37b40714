package ledger

import (
	"math/bits"

	"FlowCash/model"
)

// BasisPoints is the fee denominator: 250 bps = 2.5%.
const BasisPoints = 10_000

func mulChecked(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

func addChecked(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// SplitFee 按费率拆分金额：艺人份额向下取整，平台份额取余数，两者之和恒等于 total。
// feeBps 必须不大于 BasisPoints。
func SplitFee(total model.Amount, feeBps uint64) (artistShare, platformShare model.Amount) {
	// 128 位中间值，hi < BasisPoints 保证 Div64 不会溢出
	hi, lo := bits.Mul64(uint64(total), BasisPoints-feeBps)
	q, _ := bits.Div64(hi, lo, BasisPoints)
	artistShare = model.Amount(q)
	return artistShare, total - artistShare
}
