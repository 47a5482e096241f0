package runtime

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	guarderrors "guard/internal/errors"
	"guard/internal/processor"
	"guard/pkg/models"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer secp256k1签名者，授权方标识为公钥的keccak256
type Signer struct {
	key       *ecdsa.PrivateKey
	authority models.Pubkey
}

// GenerateSigner 生成新的签名者
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("生成密钥失败: %w", err)
	}
	return newSigner(key), nil
}

// SignerFromHex 从十六进制私钥创建签名者
func SignerFromHex(privateKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析私钥失败: %w", err)
	}
	return newSigner(key), nil
}

func newSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, authority: AuthorityOf(&key.PublicKey)}
}

// Authority 返回授权方标识
func (s *Signer) Authority() models.Pubkey {
	return s.authority
}

// PrivateKeyHex 导出私钥
func (s *Signer) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(s.key))
}

// Sign 对指令摘要签名
func (s *Signer) Sign(digest models.Pubkey) ([]byte, error) {
	return crypto.Sign(digest.Bytes(), s.key)
}

// AuthorityOf 公钥对应的授权方标识
func AuthorityOf(pub *ecdsa.PublicKey) models.Pubkey {
	return crypto.Keccak256Hash(crypto.FromECDSAPub(pub)[1:])
}

// InstructionDigest 指令摘要: 程序ID、各账户及其可写标志、指令数据
func InstructionDigest(programID models.Pubkey, metas []AccountMeta, data []byte) models.Pubkey {
	parts := make([][]byte, 0, len(metas)*2+2)
	parts = append(parts, programID.Bytes())
	for _, meta := range metas {
		writable := byte(0)
		if meta.IsWritable {
			writable = 1
		}
		parts = append(parts, meta.Key.Bytes(), []byte{writable})
	}
	parts = append(parts, data)
	return crypto.Keccak256Hash(parts...)
}

// VerifySignature 从签名恢复授权方标识
func VerifySignature(digest models.Pubkey, signature []byte) (models.Pubkey, error) {
	if len(signature) != crypto.SignatureLength {
		return models.Pubkey{}, fmt.Errorf("签名长度无效: %d", len(signature))
	}
	pub, err := crypto.SigToPub(digest.Bytes(), signature)
	if err != nil {
		return models.Pubkey{}, fmt.Errorf("恢复公钥失败: %w", err)
	}
	return AuthorityOf(pub), nil
}

// SignedInstruction 带签名的指令，签名者由签名恢复而非调用方声明
type SignedInstruction struct {
	Accounts   []AccountMeta
	Data       []byte
	Signatures [][]byte
}

// SignInstruction 构造并签名指令，签名者账户标记为签名
func SignInstruction(programID models.Pubkey, metas []AccountMeta, data []byte, signers ...*Signer) (*SignedInstruction, error) {
	digest := InstructionDigest(programID, metas, data)
	ix := &SignedInstruction{Accounts: metas, Data: data}
	for _, signer := range signers {
		sig, err := signer.Sign(digest)
		if err != nil {
			return nil, fmt.Errorf("签名失败: %w", err)
		}
		ix.Signatures = append(ix.Signatures, sig)
	}
	return ix, nil
}

// Submit 验证签名、设置签名标志后执行指令
func (r *Runtime) Submit(ctx context.Context, ix *SignedInstruction) (*processor.Outcome, error) {
	digest := InstructionDigest(r.ProgramID(), ix.Accounts, ix.Data)

	signers := make(map[models.Pubkey]bool, len(ix.Signatures))
	for _, sig := range ix.Signatures {
		authority, err := VerifySignature(digest, sig)
		if err != nil {
			return nil, r.reject(ctx, ix.Data, guarderrors.ErrUnauthorizedAccount.Wrap(err).WithComponent("signer"))
		}
		signers[authority] = true
	}

	metas := make([]AccountMeta, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		meta.IsSigner = signers[meta.Key]
		metas[i] = meta
	}
	return r.Invoke(ctx, metas, ix.Data)
}
