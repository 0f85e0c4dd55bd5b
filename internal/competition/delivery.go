package competition

import "hash/fnv"

// DeliveryEstimator は配送日数の見積もりを返す。
// マーケットプレイスAPIから実測値は得られないため、値は目安でしかない。
type DeliveryEstimator interface {
	Estimate(listingID string) int
}

// HashDeliveryEstimator は出品IDのFNV-1aハッシュから[Min, Max]の日数を決める。
// 同じ出品には常に同じ値を返す。
type HashDeliveryEstimator struct {
	Min int
	Max int
}

// NewHashDeliveryEstimator はHashDeliveryEstimatorを生成する。
// minが1未満なら1に、maxがminより小さければminに揃える。
func NewHashDeliveryEstimator(min, max int) HashDeliveryEstimator {
	min, max = clampRange(min, max)
	return HashDeliveryEstimator{Min: min, Max: max}
}

// Estimate は見積もり日数を返す。
// 構造体リテラルで作られた不正な範囲もここで補正する。
func (e HashDeliveryEstimator) Estimate(listingID string) int {
	min, max := clampRange(e.Min, e.Max)
	h := fnv.New32a()
	h.Write([]byte(listingID))
	span := uint32(max - min + 1)
	return min + int(h.Sum32()%span)
}

func clampRange(min, max int) (int, int) {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return min, max
}
