package action

import (
	"fmt"

	"mxops/internal/model"
)

// Step 动作工作流中的一个执行单元
type Step string

const (
	StepCallStart             Step = "call_start"
	StepCallStop              Step = "call_stop"
	StepPollStarted           Step = "poll_started"
	StepPollStopped           Step = "poll_stopped"
	StepCreatePackage         Step = "create_package"
	StepPollPackage           Step = "poll_package"
	StepTransport             Step = "transport"
	StepPollTransport         Step = "poll_transport"
	StepStopEnv               Step = "stop_env"
	StepCreateBackup          Step = "create_backup"
	StepPollBackup            Step = "poll_backup"
	StepStartEnv              Step = "start_env"
	StepRetrieveSourcePackage Step = "retrieve_source_package"
)

// stepDone 后继表里表示"本步成功即整个动作完成"
const stepDone Step = ""

// initialSteps 每种动作类型的起始步骤
var initialSteps = map[model.CloudActionType]Step{
	model.CloudActionTypeStart:     StepCallStart,
	model.CloudActionTypeStop:      StepCallStop,
	model.CloudActionTypeRestart:   StepCallStop,
	model.CloudActionTypeDeploy:    StepCreatePackage,
	model.CloudActionTypeTransport: StepRetrieveSourcePackage,
}

// successors 每种类型的步骤后继表。
// 把工作流图固化成表而不是靠自由文本switch，跑到表外即报错。
var successors = map[model.CloudActionType]map[Step]Step{
	model.CloudActionTypeStart: {
		StepCallStart:   StepPollStarted,
		StepPollStarted: stepDone,
	},
	model.CloudActionTypeStop: {
		StepCallStop: stepDone,
	},
	model.CloudActionTypeRestart: {
		StepCallStop:    StepPollStopped,
		StepPollStopped: StepCallStart,
		StepCallStart:   StepPollStarted,
		StepPollStarted: stepDone,
	},
	model.CloudActionTypeDeploy: {
		StepCreatePackage: StepPollPackage,
		StepPollPackage:   StepTransport,
		StepTransport:     StepPollTransport,
		StepPollTransport: StepStopEnv,
		StepStopEnv:       StepPollStopped,
		StepPollStopped:   StepCreateBackup,
		StepCreateBackup:  StepPollBackup,
		StepPollBackup:    StepStartEnv,
		StepStartEnv:      StepPollStarted,
		StepPollStarted:   stepDone,
	},
	model.CloudActionTypeTransport: {
		StepRetrieveSourcePackage: StepTransport,
		StepTransport:             StepPollTransport,
		StepPollTransport:         stepDone,
	},
}

// InitialStep 返回动作类型的起始步骤
func InitialStep(actionType model.CloudActionType) (Step, error) {
	step, ok := initialSteps[actionType]
	if !ok {
		return "", fmt.Errorf("unknown action type: %s", actionType)
	}
	return step, nil
}

// successor 返回当前步骤成功后的下一步。done=true表示动作完成。
func successor(actionType model.CloudActionType, step Step) (next Step, done bool, err error) {
	table, ok := successors[actionType]
	if !ok {
		return "", false, fmt.Errorf("unknown action type: %s", actionType)
	}
	next, ok = table[step]
	if !ok {
		return "", false, fmt.Errorf("step %s is not part of the %s workflow", step, actionType)
	}
	return next, next == stepDone, nil
}

// currentStep 解析动作的当前步骤（空游标使用类型初始步骤）
func currentStep(a *model.CloudAction) (Step, error) {
	if a.CurrentStep == "" {
		return InitialStep(a.ActionType)
	}
	step := Step(a.CurrentStep)
	if _, ok := successors[a.ActionType][step]; !ok {
		return "", fmt.Errorf("step %s is not part of the %s workflow", step, a.ActionType)
	}
	return step, nil
}

// StepChain 返回类型的完整步骤序列（用于展示与校验）
func StepChain(actionType model.CloudActionType) []Step {
	step, ok := initialSteps[actionType]
	if !ok {
		return nil
	}
	var chain []Step
	for step != stepDone {
		chain = append(chain, step)
		next, ok := successors[actionType][step]
		if !ok {
			return chain
		}
		step = next
	}
	return chain
}
