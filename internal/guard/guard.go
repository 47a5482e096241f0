package guard

import (
	guarderrors "guard/internal/errors"
	"guard/pkg/models"
)

// Check 单个授权检查
type Check func() error

// All 按顺序执行检查，返回第一个失败
func All(checks ...Check) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// CheckSigner 账户必须签名
func CheckSigner(account *models.AccountInfo) error {
	if account == nil || !account.IsSigner {
		return guarderrors.ErrUnauthorizedAccount.WithContext("reason", "缺少签名")
	}
	return nil
}

// CheckOwner 账户必须归属本程序
func CheckOwner(account *models.AccountInfo, programID models.Pubkey) error {
	if account == nil {
		return guarderrors.ErrInvalidAccountData.WithContext("reason", "账户缺失")
	}
	if account.Owner != programID {
		return guarderrors.ErrInvalidAccountData.
			WithContext("account", account.Key.Hex()).
			WithContext("owner", account.Owner.Hex())
	}
	return nil
}

// CheckWritable 待写入的记录必须以可写方式传入
func CheckWritable(account *models.AccountInfo) error {
	if account == nil || !account.IsWritable {
		return guarderrors.ErrInvalidAccountData.WithContext("reason", "记录账户不可写")
	}
	return nil
}

// CheckAuthority 签名者必须是记录中登记的授权方
func CheckAuthority(state *models.NetworkState, signer *models.AccountInfo) error {
	if state == nil || signer == nil {
		return guarderrors.ErrUnauthorizedAccount.WithContext("reason", "授权信息缺失")
	}
	if !state.IsAuthority(signer.Key) {
		return guarderrors.ErrUnauthorizedAccount.
			WithContext("signer", signer.Key.Hex()).
			WithContext("authority", state.Authority.Hex())
	}
	return nil
}

// CheckBufferSize 记录长度不能超过槽位容量
func CheckBufferSize(space, required int) error {
	if required > space {
		return guarderrors.ErrInsufficientBufferSize.
			WithContext("space", space).
			WithContext("required", required)
	}
	return nil
}

// CheckProgramID 程序ID不能为全零
func CheckProgramID(programID models.Pubkey) error {
	if models.IsZeroPubkey(programID) {
		return guarderrors.ErrInvalidAccountData.WithContext("reason", "程序ID为空")
	}
	return nil
}
