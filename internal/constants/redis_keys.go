package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "hr"

	// ApplicantModulePrefix 申请人模块
	ApplicantModulePrefix = "applicant"
	// StatusModulePrefix 状态分类模块
	StatusModulePrefix = "status"
	// FileModulePrefix 文件模块
	FileModulePrefix = "file"

	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityCache 缓存实体
	EntityCache = "cache"
	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"

	// KeyAnalysisLock 单个申请人AI分析的互斥锁 (STRING)
	// 格式: hr:applicant:lock:{applicantID}
	KeyAnalysisLock = AppPrefix + ":" + ApplicantModulePrefix + ":" + EntityLock + ":%s"

	// KeyDefaultStatusCache 默认状态分类缓存 (STRING, JSON)
	// 格式: hr:status:cache:default
	KeyDefaultStatusCache = AppPrefix + ":" + StatusModulePrefix + ":" + EntityCache + ":default"

	// KeyFileMD5Set 原始文件MD5集合，用于上传去重提示 (SET)
	// 格式: hr:file:dedup_set
	KeyFileMD5Set = AppPrefix + ":" + FileModulePrefix + ":" + EntityDedupSet
)
