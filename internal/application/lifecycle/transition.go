// Package lifecycle 维护生成的权威状态并执行合法的状态迁移
package lifecycle

import (
	"errors"
	"fmt"

	"paper-gen-api/internal/domain/entity"
)

// TransitionError 非法状态迁移（冲突），由调用方以客户端错误返回
type TransitionError struct {
	Status entity.GenerationStatus
	Action entity.Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot apply action %q to generation in status %s", e.Action, e.Status)
}

// IsConflict 判断错误是否为非法迁移
func IsConflict(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// Transition 根据当前状态和用户动作计算目标状态
//
//	DRAFT   --next-->   RUNNING
//	DRAFT   --cancel--> CANCELED
//	RUNNING --cancel--> CANCELED
//
// 其余组合（包括 RUNNING 上的 next 以及终态上的任意动作）均为冲突。
func Transition(status entity.GenerationStatus, action entity.Action) (entity.GenerationStatus, error) {
	if status.IsTerminal() {
		return status, &TransitionError{Status: status, Action: action}
	}

	switch action {
	case entity.ActionNext:
		if status == entity.GenerationStatusDraft {
			return entity.GenerationStatusRunning, nil
		}
	case entity.ActionCancel:
		return entity.GenerationStatusCanceled, nil
	}

	return status, &TransitionError{Status: status, Action: action}
}

// outcomeStatus 任务结果驱动的迁移：失败进入 FAILED，最后一步成功进入 COMPLETED，
// 中间步骤成功保持 RUNNING。
func outcomeStatus(success, lastStep bool) entity.GenerationStatus {
	switch {
	case !success:
		return entity.GenerationStatusFailed
	case lastStep:
		return entity.GenerationStatusCompleted
	default:
		return entity.GenerationStatusRunning
	}
}
