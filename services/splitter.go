package services

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"listing-classifier/models"
)

// StratifiedSplit partitions t into train and test so each class of labelCol
// keeps (within rounding) its share in both partitions. The test partition
// holds ceil(testSize*n) rows.
func StratifiedSplit(t *models.Table, labelCol string, testSize float64, seed int64) (train, test *models.Table, err error) {
	labels, err := t.Strings(labelCol)
	if err != nil {
		return nil, nil, fmt.Errorf("split: %w", err)
	}
	trainIdx, testIdx, err := stratifiedIndices(labels, testSize, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, nil, fmt.Errorf("split on %s: %w", labelCol, err)
	}

	if train, err = t.Subset(trainIdx); err != nil {
		return nil, nil, fmt.Errorf("split: %w", err)
	}
	if test, err = t.Subset(testIdx); err != nil {
		return nil, nil, fmt.Errorf("split: %w", err)
	}
	return train, test, nil
}

func stratifiedIndices(labels []string, testSize float64, rng *rand.Rand) ([]int, []int, error) {
	n := len(labels)
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %g", testSize)
	}

	byClass := make(map[string][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]string, 0, len(byClass))
	for c, members := range byClass {
		if len(members) < 2 {
			return nil, nil, fmt.Errorf("class %q has %d member; at least 2 are needed to stratify", c, len(members))
		}
		classes = append(classes, c)
	}
	sort.Strings(classes)

	nTest := int(math.Ceil(testSize*float64(n) - 1e-9))
	nTrain := n - nTest
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, nil, fmt.Errorf("%d train / %d test rows cannot hold all %d classes", nTrain, nTest, len(classes))
	}

	// Largest-remainder apportionment of the test rows across classes.
	quota := make([]int, len(classes))
	type remainder struct {
		class int
		frac  float64
	}
	rems := make([]remainder, len(classes))
	assigned := 0
	for k, c := range classes {
		exact := float64(len(byClass[c])) * float64(nTest) / float64(n)
		quota[k] = int(math.Floor(exact))
		rems[k] = remainder{class: k, frac: exact - float64(quota[k])}
		assigned += quota[k]
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for r := 0; assigned < nTest; r++ {
		k := rems[r%len(rems)].class
		if quota[k] < len(byClass[classes[k]])-1 {
			quota[k]++
			assigned++
		}
	}

	var trainIdx, testIdx []int
	for k, c := range classes {
		members := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(members), func(i, j int) { members[i], members[j] = members[j], members[i] })
		testIdx = append(testIdx, members[:quota[k]]...)
		trainIdx = append(trainIdx, members[quota[k]:]...)
	}
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })
	return trainIdx, testIdx, nil
}
