package inflater

import (
	"fmt"

	"github.com/samber/lo"
)

func (s *UnitTestSuite) TestPlanBatchesSum() {
	for _, total := range []int64{1, 2, 9, 10, 99, 100, 101, 1_000_003} {
		for _, batchSize := range []int64{1, 3, 7, 10, 100, 5_000_000} {
			tasks, err := PlanBatches(total, batchSize)
			s.Require().NoError(err)

			label := fmt.Sprintf("total %d, batch size %d", total, batchSize)

			s.Assert().Len(tasks, int((total+batchSize-1)/batchSize), label)
			s.Assert().Equal(
				total,
				lo.SumBy(tasks, func(t BatchTask) int64 { return t.Count }),
				label,
			)

			for i, task := range tasks {
				s.Assert().Equal(i, task.Index, label)
				s.Assert().Equal(TaskPending, task.Status, label)
				s.Assert().Positive(task.Count, label)

				if i < len(tasks)-1 {
					s.Assert().Equal(batchSize, task.Count, label)
				}
			}
		}
	}
}

func (s *UnitTestSuite) TestPlanBatchesLastRemainder() {
	tasks, err := PlanBatches(10, 4)
	s.Require().NoError(err)

	s.Assert().Equal(
		[]int64{4, 4, 2},
		lo.Map(tasks, func(t BatchTask, _ int) int64 { return t.Count }),
	)
}

func (s *UnitTestSuite) TestPlanBatchesInvalid() {
	for _, args := range [][2]int64{{0, 1}, {-1, 1}, {1, 0}, {1, -5}} {
		_, err := PlanBatches(args[0], args[1])
		s.Assert().ErrorAs(err, &ConfigError{}, "%v", args)
	}
}
